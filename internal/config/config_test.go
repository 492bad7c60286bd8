package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	p, err := cfg.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, 5, p.Signals.ImbalanceDepth)
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	yaml := `
app:
  strategy_profile: ${QC_PROFILE}
system:
  log_level: INFO
state:
  backend: memory
risk:
  drawdown_stop_fraction: 0.05
profiles:
  tight:
    signals:
      imbalance_depth: 2
      flow_window: 16
      flow_min_trades: 2
      flow_return_weight: 0.3
    volatility:
      ewma_alpha: 0.12
      floor: 0.0001
      multiplier_scale: 40
      multiplier_cap: 2.5
    inventory:
      mode: base_units
      target: 0
      soft_cap: 2
      hard_cap: 4
      derisk_fraction: 0.5
      derisk_through_ticks: 1
      loss_cooldown_fraction: 0.02
      loss_cooldown_ticks: 4
    pricing:
      imbalance_weight: 0.2
      flow_weight: 0.1
      inventory_weight: 0.5
      min_half_spread_ticks: 1
      base_spread_fraction: 0.3
      toxic_flow_threshold: 0.6
      toxic_return_threshold: 0.001
      toxic_divergence_threshold: 0.3
      toxic_extra_ticks: 2
      toxic_drop_side_threshold: 0.9
      toxic_cooldown_ticks: 2
    sizing:
      mode: fixed
      base_qty: 0.5
      min_qty: 0.1
      max_qty: 2.0
      imbalance_boost: 0.2
    lifecycle:
      max_age_ticks: 3
      tolerance_ticks: 1
      tiny_order_fraction: 0.1
      order_count_margin: 2
      maker_fee_ceiling: 0.001
    expiry:
      base_millis: 20000
      min_millis: 10000
      max_millis: 40000
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("QC_PROFILE", "tight")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tight", cfg.App.StrategyProfile)

	p, err := cfg.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Signals.ImbalanceDepth)
	assert.Equal(t, 0.12, p.Volatility.EwmaAlpha)
}

func TestValidate_UnknownProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.StrategyProfile = "missing"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.strategy_profile")
}

func TestValidate_ProfileBounds(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Profile)
		field  string
	}{
		{"alpha too high", func(p *Profile) { p.Volatility.EwmaAlpha = 1.0 }, "ewma_alpha"},
		{"zero vol floor", func(p *Profile) { p.Volatility.Floor = 0 }, "volatility.floor"},
		{"soft above hard", func(p *Profile) { p.Inventory.SoftCap = 10; p.Inventory.HardCap = 5 }, "soft_cap"},
		{"bad inventory mode", func(p *Profile) { p.Inventory.Mode = "shares" }, "inventory.mode"},
		{"zero half spread", func(p *Profile) { p.Pricing.MinHalfSpreadTicks = 0 }, "min_half_spread_ticks"},
		{"bad sizing mode", func(p *Profile) { p.Sizing.Mode = "martingale" }, "sizing.mode"},
		{"inverted qty bounds", func(p *Profile) { p.Sizing.MinQty = 3; p.Sizing.MaxQty = 1 }, "sizing"},
		{"depth out of range", func(p *Profile) { p.Signals.ImbalanceDepth = 11 }, "imbalance_depth"},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			cfg := DefaultConfig()
			p := cfg.Profiles["adaptive"]
			m.mutate(&p)
			cfg.Profiles["adaptive"] = p
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), m.field)
		})
	}
}

func TestValidate_SQLiteRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.State.Backend = "sqlite"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite_path")

	cfg.State.SQLitePath = "/tmp/state.db"
	require.NoError(t, cfg.Validate())
}
