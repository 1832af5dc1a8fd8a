package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"strategylab/internal/engine"
)

// DefaultPath is read when STRATEGYLAB_CONFIG is unset.
const DefaultPath = "config/strategylab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for strategylab.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Server      Server            `yaml:"server"`
	Alpaca      Alpaca            `yaml:"alpaca"`
	Logging     Logging           `yaml:"logging"`
	Backtest    BacktestSection   `yaml:"backtest"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	SignalsDir  string `yaml:"signals_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestSection mirrors engine.Config in YAML form. Percentages are
// fractions. Pointer fields distinguish an explicit zero from unset.
type BacktestSection struct {
	InitialCapital float64 `yaml:"initial_capital"`

	CommissionModel string                  `yaml:"commission_model"`
	CommissionRate  *float64                `yaml:"commission_rate"`
	CommissionTiers []engine.CommissionTier `yaml:"commission_tiers"`
	MinCommission   float64                 `yaml:"min_commission"`
	MaxCommission   float64                 `yaml:"max_commission"`
	SlippageRate    *float64                `yaml:"slippage_rate"`

	MaxVolumeParticipation float64 `yaml:"max_volume_participation"`
	AllowShort             bool    `yaml:"allow_short"`
	AllowFractionalShares  bool    `yaml:"allow_fractional_shares"`
	CashSweepRate          float64 `yaml:"cash_sweep_rate"`
	MarginMultiplier       float64 `yaml:"margin_multiplier"`

	PositionSizePct *float64 `yaml:"position_size_pct"`
	StopLossPct     float64  `yaml:"stop_loss_pct"`
	TakeProfitPct   float64  `yaml:"take_profit_pct"`
	TrailingStopPct float64  `yaml:"trailing_stop_pct"`

	Allocation        string             `yaml:"allocation"`
	CustomWeights     map[string]float64 `yaml:"custom_weights"`
	RebalanceInterval int                `yaml:"rebalance_interval"`

	Regime RegimeSection `yaml:"regime"`

	MaxDrawdownHaltPct     float64  `yaml:"max_drawdown_halt_pct"`
	ConfidenceThreshold    *float64 `yaml:"confidence_threshold"`
	DefaultLimitExpiryBars int      `yaml:"default_limit_expiry_bars"`
	RiskFreeRate           float64  `yaml:"risk_free_rate"`

	PrimarySymbol   string `yaml:"primary_symbol"`
	BenchmarkSymbol string `yaml:"benchmark_symbol"`
}

// RegimeSection configures regime-aware sizing.
type RegimeSection struct {
	Enabled        bool               `yaml:"enabled"`
	ShortWindow    int                `yaml:"short_window"`
	LongWindow     int                `yaml:"long_window"`
	HighVolRatio   float64            `yaml:"high_vol_ratio"`
	TrendThreshold float64            `yaml:"trend_threshold"`
	Multipliers    map[string]float64 `yaml:"multipliers"`
}

// WalkForwardConfig sets the default fold geometry in timeline dates.
type WalkForwardConfig struct {
	TrainDays int `yaml:"train_days"`
	TestDays  int `yaml:"test_days"`
	StepDays  int `yaml:"step_days"`
}

// EngineConfig converts the section into an engine.Config, starting from
// engine.DefaultConfig for every field left unset, and validates it.
func (b BacktestSection) EngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()

	if b.InitialCapital != 0 {
		cfg.InitialCapital = decimal.NewFromFloat(b.InitialCapital)
	}
	if b.CommissionModel != "" {
		cfg.Commission.Kind = engine.CommissionKind(strings.ToLower(b.CommissionModel))
	}
	if b.CommissionRate != nil {
		cfg.Commission.Rate = *b.CommissionRate
	}
	cfg.Commission.Tiers = b.CommissionTiers
	cfg.Commission.Minimum = b.MinCommission
	cfg.Commission.Maximum = b.MaxCommission
	if b.SlippageRate != nil {
		cfg.SlippageRate = *b.SlippageRate
	}

	cfg.MaxVolumeParticipation = b.MaxVolumeParticipation
	cfg.AllowShort = b.AllowShort
	cfg.AllowFractionalShare = b.AllowFractionalShares
	cfg.CashSweepRate = b.CashSweepRate
	if b.MarginMultiplier != 0 {
		cfg.MarginMultiplier = b.MarginMultiplier
	}

	if b.PositionSizePct != nil {
		cfg.PositionSizePct = *b.PositionSizePct
	}
	cfg.StopLossPct = b.StopLossPct
	cfg.TakeProfitPct = b.TakeProfitPct
	cfg.TrailingStopPct = b.TrailingStopPct

	if b.Allocation != "" {
		cfg.Allocation = engine.AllocationStrategy(strings.ToLower(b.Allocation))
	}
	if len(b.CustomWeights) > 0 {
		cfg.CustomWeights = make(map[string]float64, len(b.CustomWeights))
		for sym, w := range b.CustomWeights {
			cfg.CustomWeights[strings.ToUpper(sym)] = w
		}
	}
	cfg.RebalanceInterval = b.RebalanceInterval

	cfg.Regime.Enabled = b.Regime.Enabled
	if b.Regime.ShortWindow > 0 {
		cfg.Regime.ShortWindow = b.Regime.ShortWindow
	}
	if b.Regime.LongWindow > 0 {
		cfg.Regime.LongWindow = b.Regime.LongWindow
	}
	if b.Regime.HighVolRatio > 0 {
		cfg.Regime.HighVolRatio = b.Regime.HighVolRatio
	}
	if b.Regime.TrendThreshold > 0 {
		cfg.Regime.TrendThreshold = b.Regime.TrendThreshold
	}
	for name, m := range b.Regime.Multipliers {
		if cfg.Regime.Multipliers == nil {
			cfg.Regime.Multipliers = make(map[engine.Regime]float64)
		}
		cfg.Regime.Multipliers[engine.Regime(strings.ToLower(name))] = m
	}

	cfg.MaxDrawdownHaltPct = b.MaxDrawdownHaltPct
	if b.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *b.ConfidenceThreshold
	}
	if b.DefaultLimitExpiryBars > 0 {
		cfg.DefaultLimitExpiryBars = b.DefaultLimitExpiryBars
	}
	cfg.RiskFreeRate = b.RiskFreeRate
	cfg.PrimarySymbol = strings.ToUpper(b.PrimarySymbol)

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path: STRATEGYLAB_CONFIG when set,
// DefaultPath otherwise.
func Path() string {
	if v := os.Getenv("STRATEGYLAB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies defaults and environment variable
// overrides. A missing file at DefaultPath yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
	default:
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SignalsDir == "" {
		cfg.Storage.SignalsDir = "signals"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/strategylab.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.WalkForward.TrainDays == 0 {
		cfg.WalkForward.TrainDays = 252
	}
	if cfg.WalkForward.TestDays == 0 {
		cfg.WalkForward.TestDays = 63
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SIGNALS_DIR"); v != "" {
		cfg.Storage.SignalsDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
