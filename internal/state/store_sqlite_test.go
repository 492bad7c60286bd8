package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := t.Context()

	books := map[string]*BookState{
		"BTC-0": {
			PriceHistory:      []float64{100, 100.5, 101},
			EwmaVariance:      0.0004,
			LastMid:           101,
			CooldownUntil:     12345,
			LossCooldownUntil: 0,
			WealthBaseline:    10_000,
		},
		"ETH-0": {LastMid: 52.5},
	}
	require.NoError(t, store.SaveSession(ctx, "session-1", books))

	loaded, err := store.LoadSession(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, books["BTC-0"].PriceHistory, loaded["BTC-0"].PriceHistory)
	assert.Equal(t, books["BTC-0"].WealthBaseline, loaded["BTC-0"].WealthBaseline)
	assert.Equal(t, 52.5, loaded["ETH-0"].LastMid)
}

func TestSQLiteStore_Overwrite(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := t.Context()

	require.NoError(t, store.SaveSession(ctx, "session-1", map[string]*BookState{"BTC-0": {LastMid: 1}}))
	require.NoError(t, store.SaveSession(ctx, "session-1", map[string]*BookState{"BTC-0": {LastMid: 2}}))

	loaded, err := store.LoadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, loaded["BTC-0"].LastMid)
}

func TestSQLiteStore_MissingSession(t *testing.T) {
	store := newTestSQLiteStore(t)
	loaded, err := store.LoadSession(t.Context(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
