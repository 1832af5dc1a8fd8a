package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"strategylab/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategylab.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SIGNALS_DIR", "SQLITE_PATH", "POSTGRES_DSN", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/strategylab/data"
  sqlite_path: "/tmp/strategylab/results.db"
  postgres_dsn: "postgres://u:p@localhost/lab"
server:
  host: "0.0.0.0"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  feed: "iex"
logging:
  level: "debug"
  format: "json"
backtest:
  initial_capital: 50000
  commission_model: tiered
  commission_tiers:
    - {up_to: 10000, rate: 0.002}
    - {rate: 0.001}
  min_commission: 1
  slippage_rate: 0
  allow_short: true
  position_size_pct: 0.25
  stop_loss_pct: 0.05
  allocation: custom
  custom_weights: {aapl: 0.6, msft: 0.4}
  regime:
    enabled: true
    multipliers: {bear: 0.25}
  max_drawdown_halt_pct: 0.1
  confidence_threshold: 0.7
  benchmark_symbol: SPY
walk_forward:
  train_days: 120
  test_days: 30
  step_days: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/strategylab/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/strategylab/data")
	}
	if cfg.Storage.PostgresDSN != "postgres://u:p@localhost/lab" {
		t.Errorf("Storage.PostgresDSN = %q", cfg.Storage.PostgresDSN)
	}
	if cfg.Storage.SignalsDir != "signals" {
		t.Errorf("Storage.SignalsDir = %q, want default %q", cfg.Storage.SignalsDir, "signals")
	}

	// -- Server --
	if cfg.Server.Addr() != "0.0.0.0:8081" || cfg.Server.GRPCAddr() != "0.0.0.0:9091" {
		t.Errorf("Server addrs = %q / %q", cfg.Server.Addr(), cfg.Server.GRPCAddr())
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca = %+v", cfg.Alpaca)
	}
	if cfg.Alpaca.RateLimitPerMin != 200 {
		t.Errorf("Alpaca.RateLimitPerMin = %d, want default 200", cfg.Alpaca.RateLimitPerMin)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Walk forward --
	if cfg.WalkForward.TrainDays != 120 || cfg.WalkForward.TestDays != 30 || cfg.WalkForward.StepDays != 30 {
		t.Errorf("WalkForward = %+v", cfg.WalkForward)
	}

	// -- Backtest --
	ec, err := cfg.Backtest.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig() returned error: %v", err)
	}
	if ec.InitialCapital.String() != "50000" {
		t.Errorf("InitialCapital = %s, want 50000", ec.InitialCapital)
	}
	if ec.Commission.Kind != engine.CommissionTiered || len(ec.Commission.Tiers) != 2 || ec.Commission.Minimum != 1 {
		t.Errorf("Commission = %+v", ec.Commission)
	}
	if ec.SlippageRate != 0 {
		t.Errorf("SlippageRate = %v, want explicit 0", ec.SlippageRate)
	}
	if !ec.AllowShort || ec.PositionSizePct != 0.25 || ec.StopLossPct != 0.05 {
		t.Errorf("sizing fields = %+v", ec)
	}
	if ec.Allocation != engine.AllocationCustom || ec.CustomWeights["AAPL"] != 0.6 {
		t.Errorf("allocation = %s %v", ec.Allocation, ec.CustomWeights)
	}
	if !ec.Regime.Enabled || ec.Regime.Multipliers[engine.RegimeBear] != 0.25 || ec.Regime.LongWindow != 60 {
		t.Errorf("Regime = %+v", ec.Regime)
	}
	if ec.ConfidenceThreshold != 0.7 || ec.MaxDrawdownHaltPct != 0.1 {
		t.Errorf("thresholds = %v / %v", ec.ConfidenceThreshold, ec.MaxDrawdownHaltPct)
	}
	if cfg.Backtest.BenchmarkSymbol != "SPY" {
		t.Errorf("BenchmarkSymbol = %q", cfg.Backtest.BenchmarkSymbol)
	}
}

func TestEngineConfigDefaults(t *testing.T) {
	ec, err := BacktestSection{}.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig() returned error: %v", err)
	}
	def := engine.DefaultConfig()
	if !ec.InitialCapital.Equal(def.InitialCapital) {
		t.Errorf("InitialCapital = %s, want %s", ec.InitialCapital, def.InitialCapital)
	}
	if ec.Commission.Rate != 0.001 || ec.SlippageRate != 0.0005 || ec.ConfidenceThreshold != 0.5 {
		t.Errorf("defaults not applied: %+v", ec)
	}
}

func TestEngineConfigInvalid(t *testing.T) {
	_, err := BacktestSection{Allocation: "martingale"}.EngineConfig()
	if !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("EngineConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("POSTGRES_DSN", "postgres://env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Storage.PostgresDSN != "postgres://env" {
		t.Errorf("Storage.PostgresDSN = %q", cfg.Storage.PostgresDSN)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, _ = Load(path)
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("APCA_API_KEY_ID should win, got %q", cfg.Alpaca.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing explicit path should fail")
	}

	t.Setenv("STRATEGYLAB_CONFIG", "/etc/lab.yaml")
	if Path() != "/etc/lab.yaml" {
		t.Errorf("Path() = %q", Path())
	}
	t.Setenv("STRATEGYLAB_CONFIG", "")
	if Path() != DefaultPath {
		t.Errorf("Path() = %q, want %q", Path(), DefaultPath)
	}
}
