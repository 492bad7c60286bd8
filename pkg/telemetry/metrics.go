package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTicksTotal         = "quote_core_ticks_total"
	MetricTickLatency        = "quote_core_tick_latency_ms"
	MetricIntentsTotal       = "quote_core_intents_total"
	MetricBooksSkippedTotal  = "quote_core_books_skipped_total"
	MetricKillSwitchOpen     = "quote_core_kill_switch_open"
	MetricInventoryDeviation = "quote_core_inventory_deviation"
	MetricVolatility         = "quote_core_volatility"
	MetricBooksCoolingDown   = "quote_core_books_cooling_down"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TicksTotal        metric.Int64Counter
	TickLatency       metric.Float64Histogram
	IntentsTotal      metric.Int64Counter
	BooksSkippedTotal metric.Int64Counter
	KillSwitchOpen    metric.Int64ObservableGauge
	InventoryDev      metric.Float64ObservableGauge
	Volatility        metric.Float64ObservableGauge
	BooksCoolingDown  metric.Int64ObservableGauge

	// State for observable gauges
	mu              sync.RWMutex
	killSwitchMap   map[string]int64   // session -> 0/1
	inventoryDevMap map[string]float64 // book -> deviation
	volatilityMap   map[string]float64 // book -> vol
	coolingDownMap  map[string]int64   // session -> count
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			killSwitchMap:   make(map[string]int64),
			inventoryDevMap: make(map[string]float64),
			volatilityMap:   make(map[string]float64),
			coolingDownMap:  make(map[string]int64),
		}
		// Instrument initialization happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("State updates processed"))
	if err != nil {
		return err
	}

	m.TickLatency, err = meter.Float64Histogram(MetricTickLatency, metric.WithDescription("Time to compute one response batch"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.IntentsTotal, err = meter.Int64Counter(MetricIntentsTotal, metric.WithDescription("Order intents emitted, by type"))
	if err != nil {
		return err
	}

	m.BooksSkippedTotal, err = meter.Int64Counter(MetricBooksSkippedTotal, metric.WithDescription("Books skipped due to per-book faults or missing data"))
	if err != nil {
		return err
	}

	m.KillSwitchOpen, err = meter.Int64ObservableGauge(MetricKillSwitchOpen, metric.WithDescription("Drawdown kill-switch state (1=tripped)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for session, val := range m.killSwitchMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("session", session)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.InventoryDev, err = meter.Float64ObservableGauge(MetricInventoryDeviation, metric.WithDescription("Inventory deviation from target, per book"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for book, val := range m.inventoryDevMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("book", book)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Volatility, err = meter.Float64ObservableGauge(MetricVolatility, metric.WithDescription("EWMA volatility of mid-price log returns, per book"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for book, val := range m.volatilityMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("book", book)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.BooksCoolingDown, err = meter.Int64ObservableGauge(MetricBooksCoolingDown, metric.WithDescription("Books currently in a quote cooldown, per session"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for session, val := range m.coolingDownMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("session", session)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to record counters (no-op before InitMetrics)

func (m *MetricsHolder) AddTick(ctx context.Context) {
	if m.TicksTotal != nil {
		m.TicksTotal.Add(ctx, 1)
	}
}

func (m *MetricsHolder) RecordTickLatency(ctx context.Context, ms float64) {
	if m.TickLatency != nil {
		m.TickLatency.Record(ctx, ms)
	}
}

func (m *MetricsHolder) AddIntents(ctx context.Context, intentType string, n int64) {
	if m.IntentsTotal != nil && n > 0 {
		m.IntentsTotal.Add(ctx, n, metric.WithAttributes(attribute.String("type", intentType)))
	}
}

func (m *MetricsHolder) AddBookSkipped(ctx context.Context, reason string) {
	if m.BooksSkippedTotal != nil {
		m.BooksSkippedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Helpers to update observable state

func (m *MetricsHolder) SetKillSwitchOpen(session string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitchMap[session] = val
}

func (m *MetricsHolder) SetInventoryDeviation(book string, dev float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventoryDevMap[book] = dev
}

func (m *MetricsHolder) SetVolatility(book string, vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volatilityMap[book] = vol
}

func (m *MetricsHolder) SetBooksCoolingDown(session string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coolingDownMap[session] = count
}

func (m *MetricsHolder) GetKillSwitchState() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.killSwitchMap))
	for k, v := range m.killSwitchMap {
		res[k] = v
	}
	return res
}
