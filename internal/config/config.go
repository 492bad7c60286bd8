// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Inventory accounting modes. The source strategies split between raw base
// exposure and wealth-normalized exposure; the mode decides which one both
// the risk controller and the pricing engine use.
const (
	StateBackendMemory = "memory"
	StateBackendSQLite = "sqlite"

	InventoryModeBaseUnits      = "base_units"
	InventoryModeWealthFraction = "wealth_fraction"
)

// Sizing modes for the base quote quantity
const (
	SizingModeFixed        = "fixed"
	SizingModeBookFraction = "book_fraction"
	SizingModeNotional     = "notional"
)

// Config represents the complete configuration structure
type Config struct {
	App       AppConfig          `yaml:"app"`
	System    SystemConfig       `yaml:"system"`
	Session   SessionConfig      `yaml:"session"`
	State     StateConfig        `yaml:"state"`
	Archive   ArchiveConfig      `yaml:"archive"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
	Risk      RiskConfig         `yaml:"risk"`
	Profiles  map[string]Profile `yaml:"profiles"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	StrategyProfile string `yaml:"strategy_profile"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// SessionConfig contains the websocket session feed settings
type SessionConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections" validate:"min=1,max=10000"`
	RateLimit      float64  `yaml:"rate_limit"` // connections per second per IP
	RateBurst      int      `yaml:"rate_burst"`
}

// StateConfig selects the per-book state persistence backend
type StateConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=memory sqlite"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ArchiveConfig contains background history archiving settings
type ArchiveConfig struct {
	Enabled   bool `yaml:"enabled"`
	Workers   int  `yaml:"workers" validate:"min=1,max=16"`
	QueueSize int  `yaml:"queue_size" validate:"min=1,max=4096"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// RiskConfig contains the session-wide drawdown kill-switch settings
type RiskConfig struct {
	DrawdownStopFraction float64 `yaml:"drawdown_stop_fraction" validate:"min=0,max=1"`
}

// Profile is one complete parameter set for the decision pipeline. The
// engine itself is profile-agnostic; behavior differences between deployed
// strategies are expressed entirely here.
type Profile struct {
	Signals    SignalConfig     `yaml:"signals"`
	Volatility VolatilityConfig `yaml:"volatility"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Expiry     ExpiryConfig     `yaml:"expiry"`
}

// SignalConfig parametrizes feature extraction
type SignalConfig struct {
	ImbalanceDepth   int     `yaml:"imbalance_depth" validate:"min=1,max=10"`
	FlowWindow       int     `yaml:"flow_window" validate:"min=1,max=512"`
	FlowMinTrades    int     `yaml:"flow_min_trades"`
	FlowReturnWeight float64 `yaml:"flow_return_weight" validate:"min=0,max=1"`
}

// VolatilityConfig parametrizes the EWMA variance tracker
type VolatilityConfig struct {
	EwmaAlpha       float64 `yaml:"ewma_alpha" validate:"min=0,max=1"`
	Floor           float64 `yaml:"floor"`
	MultiplierScale float64 `yaml:"multiplier_scale"`
	MultiplierCap   float64 `yaml:"multiplier_cap"`
}

// InventoryConfig parametrizes the inventory risk controller
type InventoryConfig struct {
	Mode                 string  `yaml:"mode" validate:"oneof=base_units wealth_fraction"`
	Target               float64 `yaml:"target"`
	SoftCap              float64 `yaml:"soft_cap"`
	HardCap              float64 `yaml:"hard_cap"`
	DeriskFraction       float64 `yaml:"derisk_fraction" validate:"min=0,max=1"`
	DeriskThroughTicks   int     `yaml:"derisk_through_ticks"`
	LossCooldownFraction float64 `yaml:"loss_cooldown_fraction" validate:"min=0,max=1"`
	LossCooldownTicks    int     `yaml:"loss_cooldown_ticks"`
}

// PricingConfig parametrizes the quote pricing engine
type PricingConfig struct {
	ImbalanceWeight          float64 `yaml:"imbalance_weight"`
	FlowWeight               float64 `yaml:"flow_weight"`
	InventoryWeight          float64 `yaml:"inventory_weight"`
	MinHalfSpreadTicks       int     `yaml:"min_half_spread_ticks" validate:"min=1"`
	BaseSpreadFraction       float64 `yaml:"base_spread_fraction" validate:"min=0,max=1"`
	ToxicFlowThreshold       float64 `yaml:"toxic_flow_threshold" validate:"min=0,max=1"`
	ToxicReturnThreshold     float64 `yaml:"toxic_return_threshold"`
	ToxicDivergenceThreshold float64 `yaml:"toxic_divergence_threshold" validate:"min=0,max=2"`
	ToxicExtraTicks          int     `yaml:"toxic_extra_ticks"`
	ToxicDropSideThreshold   float64 `yaml:"toxic_drop_side_threshold" validate:"min=0,max=1"`
	ToxicCooldownTicks       int     `yaml:"toxic_cooldown_ticks"`
}

// SizingConfig parametrizes quote quantity selection
type SizingConfig struct {
	Mode           string  `yaml:"mode" validate:"oneof=fixed book_fraction notional"`
	BaseQty        float64 `yaml:"base_qty"`
	BookFraction   float64 `yaml:"book_fraction"`
	Notional       float64 `yaml:"notional"`
	MinQty         float64 `yaml:"min_qty"`
	MaxQty         float64 `yaml:"max_qty"`
	ImbalanceBoost float64 `yaml:"imbalance_boost" validate:"min=0,max=1"`
}

// LifecycleConfig parametrizes order lifecycle management
type LifecycleConfig struct {
	MaxAgeTicks       int     `yaml:"max_age_ticks" validate:"min=1"`
	ToleranceTicks    int     `yaml:"tolerance_ticks" validate:"min=0"`
	TinyOrderFraction float64 `yaml:"tiny_order_fraction" validate:"min=0,max=1"`
	OrderCountMargin  int     `yaml:"order_count_margin" validate:"min=0"`
	MakerFeeCeiling   float64 `yaml:"maker_fee_ceiling"`
}

// ExpiryConfig parametrizes adaptive order expiry
type ExpiryConfig struct {
	BaseMillis int64 `yaml:"base_millis"`
	MinMillis  int64 `yaml:"min_millis"`
	MaxMillis  int64 `yaml:"max_millis"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateApp(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateState(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateRisk(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateProfiles(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateApp() error {
	if c.App.StrategyProfile == "" {
		return ValidationError{
			Field:   "app.strategy_profile",
			Message: "a strategy profile must be selected",
		}
	}
	if _, exists := c.Profiles[c.App.StrategyProfile]; !exists {
		return ValidationError{
			Field:   "app.strategy_profile",
			Value:   c.App.StrategyProfile,
			Message: "profile not found in profiles section",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "", StateBackendMemory:
		return nil
	case StateBackendSQLite:
		if c.State.SQLitePath == "" {
			return ValidationError{
				Field:   "state.sqlite_path",
				Message: "sqlite backend requires a database path",
			}
		}
		return nil
	default:
		return ValidationError{
			Field:   "state.backend",
			Value:   c.State.Backend,
			Message: "must be one of: memory, sqlite",
		}
	}
}

func (c *Config) validateRisk() error {
	if c.Risk.DrawdownStopFraction < 0 || c.Risk.DrawdownStopFraction >= 1 {
		return ValidationError{
			Field:   "risk.drawdown_stop_fraction",
			Value:   c.Risk.DrawdownStopFraction,
			Message: "must be in [0, 1); 0 disables the kill-switch",
		}
	}
	return nil
}

func (c *Config) validateProfiles() error {
	if len(c.Profiles) == 0 {
		return ValidationError{
			Field:   "profiles",
			Message: "at least one strategy profile must be configured",
		}
	}

	for name, p := range c.Profiles {
		if err := validateProfile(name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateProfile(name string, p Profile) error {
	field := func(f string) string { return fmt.Sprintf("profiles.%s.%s", name, f) }

	if p.Signals.ImbalanceDepth < 1 || p.Signals.ImbalanceDepth > 10 {
		return ValidationError{Field: field("signals.imbalance_depth"), Value: p.Signals.ImbalanceDepth, Message: "must be between 1 and 10"}
	}
	if p.Signals.FlowWindow < 1 {
		return ValidationError{Field: field("signals.flow_window"), Value: p.Signals.FlowWindow, Message: "must be positive"}
	}
	if p.Volatility.EwmaAlpha <= 0 || p.Volatility.EwmaAlpha >= 1 {
		return ValidationError{Field: field("volatility.ewma_alpha"), Value: p.Volatility.EwmaAlpha, Message: "must be in (0, 1)"}
	}
	if p.Volatility.Floor <= 0 {
		return ValidationError{Field: field("volatility.floor"), Value: p.Volatility.Floor, Message: "must be positive to guard pricing denominators"}
	}
	if p.Inventory.Mode != InventoryModeBaseUnits && p.Inventory.Mode != InventoryModeWealthFraction {
		return ValidationError{Field: field("inventory.mode"), Value: p.Inventory.Mode, Message: "must be one of: base_units, wealth_fraction"}
	}
	if p.Inventory.SoftCap <= 0 || p.Inventory.HardCap <= 0 {
		return ValidationError{Field: field("inventory"), Message: "soft_cap and hard_cap must be positive"}
	}
	if p.Inventory.SoftCap >= p.Inventory.HardCap {
		return ValidationError{Field: field("inventory.soft_cap"), Value: p.Inventory.SoftCap, Message: "soft_cap must be below hard_cap"}
	}
	if p.Pricing.MinHalfSpreadTicks < 1 {
		return ValidationError{Field: field("pricing.min_half_spread_ticks"), Value: p.Pricing.MinHalfSpreadTicks, Message: "must be at least 1"}
	}
	switch p.Sizing.Mode {
	case SizingModeFixed, SizingModeBookFraction, SizingModeNotional:
	default:
		return ValidationError{Field: field("sizing.mode"), Value: p.Sizing.Mode, Message: "must be one of: fixed, book_fraction, notional"}
	}
	if p.Sizing.MinQty <= 0 || p.Sizing.MaxQty < p.Sizing.MinQty {
		return ValidationError{Field: field("sizing"), Message: "min_qty must be positive and max_qty >= min_qty"}
	}
	if p.Lifecycle.MaxAgeTicks < 1 {
		return ValidationError{Field: field("lifecycle.max_age_ticks"), Value: p.Lifecycle.MaxAgeTicks, Message: "must be at least 1"}
	}
	if p.Expiry.BaseMillis <= 0 || p.Expiry.MinMillis <= 0 || p.Expiry.MaxMillis < p.Expiry.MinMillis {
		return ValidationError{Field: field("expiry"), Message: "base/min must be positive and max >= min"}
	}
	return nil
}

// ActiveProfile returns the profile selected by app.strategy_profile
func (c *Config) ActiveProfile() (Profile, error) {
	p, exists := c.Profiles[c.App.StrategyProfile]
	if !exists {
		return Profile{}, fmt.Errorf("profile not found: %s", c.App.StrategyProfile)
	}
	return p, nil
}

// String returns a YAML rendering of the configuration
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			StrategyProfile: "adaptive",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Session: SessionConfig{
			ListenAddr:     ":8700",
			AllowedOrigins: []string{"*"},
			MaxConnections: 64,
			RateLimit:      10.0,
			RateBurst:      20,
		},
		State: StateConfig{
			Backend: StateBackendMemory,
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Workers:   2,
			QueueSize: 256,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9091,
			EnableMetrics: true,
		},
		Risk: RiskConfig{
			DrawdownStopFraction: 0.05,
		},
		Profiles: map[string]Profile{
			"adaptive": DefaultProfile(),
			"dominant": func() Profile {
				p := DefaultProfile()
				p.Signals.ImbalanceDepth = 3
				p.Volatility.EwmaAlpha = 0.05
				p.Pricing.ImbalanceWeight = 0.40
				p.Pricing.FlowWeight = 0.10
				p.Inventory.Mode = InventoryModeWealthFraction
				p.Inventory.Target = 0.0
				p.Inventory.SoftCap = 0.08
				p.Inventory.HardCap = 0.12
				return p
			}(),
		},
	}
}

// DefaultProfile returns a balanced parameter set used by tests and as a
// template for named profiles
func DefaultProfile() Profile {
	return Profile{
		Signals: SignalConfig{
			ImbalanceDepth:   5,
			FlowWindow:       32,
			FlowMinTrades:    3,
			FlowReturnWeight: 0.4,
		},
		Volatility: VolatilityConfig{
			EwmaAlpha:       0.10,
			Floor:           1e-4,
			MultiplierScale: 50.0,
			MultiplierCap:   3.0,
		},
		Inventory: InventoryConfig{
			Mode:                 InventoryModeBaseUnits,
			Target:               0.0,
			SoftCap:              3.0,
			HardCap:              6.0,
			DeriskFraction:       0.5,
			DeriskThroughTicks:   2,
			LossCooldownFraction: 0.02,
			LossCooldownTicks:    6,
		},
		Pricing: PricingConfig{
			ImbalanceWeight:          0.25,
			FlowWeight:               0.15,
			InventoryWeight:          0.50,
			MinHalfSpreadTicks:       1,
			BaseSpreadFraction:       0.35,
			ToxicFlowThreshold:       0.60,
			ToxicReturnThreshold:     0.0008,
			ToxicDivergenceThreshold: 0.30,
			ToxicExtraTicks:          2,
			ToxicDropSideThreshold:   0.85,
			ToxicCooldownTicks:       2,
		},
		Sizing: SizingConfig{
			Mode:           SizingModeFixed,
			BaseQty:        0.5,
			BookFraction:   0.25,
			Notional:       50.0,
			MinQty:         0.1,
			MaxQty:         2.0,
			ImbalanceBoost: 0.3,
		},
		Lifecycle: LifecycleConfig{
			MaxAgeTicks:       4,
			ToleranceTicks:    2,
			TinyOrderFraction: 0.1,
			OrderCountMargin:  2,
			MakerFeeCeiling:   0.001,
		},
		Expiry: ExpiryConfig{
			BaseMillis: 30_000,
			MinMillis:  10_000,
			MaxMillis:  60_000,
		},
	}
}
