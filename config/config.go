package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/adapters/logger" // Import the logger package for LogLevel
	"skisTrader/internal/domain"
	"skisTrader/internal/risk"
	"skisTrader/internal/strategy/manager"
)

// Config holds all application configuration.
type Config struct {
	// Binance API, only needed for authenticated endpoints
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Pairs         []string
	KlineInterval string
	ChunkMinutes  int // Klines folded into one decision window

	// Account
	InitialBalance decimal.Decimal
	CommissionRate decimal.Decimal
	BalancePolicy  risk.PolicyKind // Empty selects the manager's default policy
	LiquidationGap decimal.Decimal

	// Skis strategy
	Quantity           decimal.Decimal
	Leverage           decimal.Decimal
	StartDelta         decimal.Decimal
	StopDelta          decimal.Decimal
	QuantityMultiplier domain.QuantityMultiplier
	ProcessStep        int

	// Trailing stop
	TrailingMinPnl        decimal.Decimal
	TrailingMaxPnl        decimal.Decimal
	TrailingMinMultiplier decimal.Decimal
	TrailingMaxMultiplier decimal.Decimal

	// Sweep runner
	CollectStep int
	BatchSize   int
	Workers     int // Zero uses every CPU
	RuinFloor   decimal.Decimal

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Market
	cfg.Pairs = getEnvAsList("PAIRS", []string{"ETHUSDT"})
	if len(cfg.Pairs) == 0 {
		errs = append(errs, "PAIRS must list at least one pair")
	}
	cfg.KlineInterval = getEnv("KLINE_INTERVAL", "1m")

	cfg.ChunkMinutes, err = getEnvAsIntRequired("CHUNK_MINUTES", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHUNK_MINUTES: %v", err))
	} else if cfg.ChunkMinutes <= 0 {
		errs = append(errs, "CHUNK_MINUTES must be positive")
	}

	// Account
	cfg.InitialBalance, err = getEnvAsDecimalRequired("INITIAL_BALANCE", "1000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if !cfg.InitialBalance.IsPositive() {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.CommissionRate, err = getEnvAsDecimalRequired("COMMISSION_RATE", "0.0005")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "COMMISSION_RATE must be between 0.0 and 1.0")
	}

	cfg.BalancePolicy = risk.PolicyKind(getEnv("BALANCE_POLICY", ""))

	cfg.LiquidationGap, err = getEnvAsDecimalRequired("LIQUIDATION_GAP", "0.1")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIQUIDATION_GAP: %v", err))
	} else if cfg.LiquidationGap.IsNegative() || cfg.LiquidationGap.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "LIQUIDATION_GAP must be between 0.0 and 1.0")
	}

	// Skis strategy
	cfg.Quantity, err = getEnvAsDecimalRequired("SKIS_QUANTITY", "5")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SKIS_QUANTITY: %v", err))
	} else if !cfg.Quantity.IsPositive() {
		errs = append(errs, "SKIS_QUANTITY must be positive")
	}

	cfg.Leverage, err = getEnvAsDecimalRequired("SKIS_LEVERAGE", "10")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SKIS_LEVERAGE: %v", err))
	} else if !cfg.Leverage.IsPositive() {
		errs = append(errs, "SKIS_LEVERAGE must be positive")
	}

	cfg.StartDelta, err = getEnvAsDecimalRequired("SKIS_START_DELTA", "0.01")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SKIS_START_DELTA: %v", err))
	} else if !cfg.StartDelta.IsPositive() {
		errs = append(errs, "SKIS_START_DELTA must be positive")
	}

	cfg.StopDelta, err = getEnvAsDecimalRequired("SKIS_STOP_DELTA", "0.04")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SKIS_STOP_DELTA: %v", err))
	} else if !cfg.StopDelta.IsPositive() {
		errs = append(errs, "SKIS_STOP_DELTA must be positive")
	}

	cfg.QuantityMultiplier, err = domain.ParseQuantityMultiplier(getEnv("SKIS_QUANTITY_MULTIPLIER", "none"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SKIS_QUANTITY_MULTIPLIER: %v", err))
	}

	cfg.ProcessStep = getEnvAsInt("PROCESS_STEP", 1)
	if cfg.ProcessStep <= 0 {
		errs = append(errs, "PROCESS_STEP must be positive")
	}

	// Trailing stop
	defaults := manager.DefaultTrailingStop()
	trailing := []struct {
		key string
		dst *decimal.Decimal
		def decimal.Decimal
	}{
		{"TRAILING_MIN_PNL", &cfg.TrailingMinPnl, defaults.MinPnl},
		{"TRAILING_MAX_PNL", &cfg.TrailingMaxPnl, defaults.MaxPnl},
		{"TRAILING_MIN_MULTIPLIER", &cfg.TrailingMinMultiplier, defaults.MinMultiplier},
		{"TRAILING_MAX_MULTIPLIER", &cfg.TrailingMaxMultiplier, defaults.MaxMultiplier},
	}
	for _, f := range trailing {
		if *f.dst, err = getEnvAsDecimalRequired(f.key, f.def.String()); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", f.key, err))
		}
	}
	if err := cfg.TrailingStop().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Sweep runner
	cfg.CollectStep = getEnvAsInt("COLLECT_STEP", 24)
	if cfg.CollectStep <= 0 {
		errs = append(errs, "COLLECT_STEP must be positive")
	}
	cfg.BatchSize = getEnvAsInt("BATCH_SIZE", 120)
	if cfg.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}
	cfg.Workers = getEnvAsInt("WORKERS", 0)
	if cfg.Workers < 0 {
		errs = append(errs, "WORKERS cannot be negative")
	}
	cfg.RuinFloor, err = getEnvAsDecimalRequired("RUIN_FLOOR", "10")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RUIN_FLOOR: %v", err))
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/skis.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// SkisOptions returns the configured strategy options.
func (c *Config) SkisOptions() domain.SkisOptions {
	return domain.SkisOptions{
		Quantity:           c.Quantity,
		Leverage:           c.Leverage,
		StartDelta:         c.StartDelta,
		StopDelta:          c.StopDelta,
		QuantityMultiplier: c.QuantityMultiplier,
	}
}

// TrailingStop returns the configured trailing stop.
func (c *Config) TrailingStop() manager.TrailingStop {
	return manager.TrailingStop{
		MinPnl:        c.TrailingMinPnl,
		MaxPnl:        c.TrailingMaxPnl,
		MinMultiplier: c.TrailingMinMultiplier,
		MaxMultiplier: c.TrailingMaxMultiplier,
	}
}

// AccountConfig returns the simulated account configuration. The validation
// policy is left nil when BALANCE_POLICY is unset.
func (c *Config) AccountConfig() (account.Config, error) {
	return accountConfig(c.InitialBalance, c.CommissionRate, c.BalancePolicy, c.LiquidationGap)
}

func accountConfig(initialBalance, commissionRate decimal.Decimal, policy risk.PolicyKind, gap decimal.Decimal) (account.Config, error) {
	cfg := account.Config{InitialBalance: initialBalance, CommissionRate: commissionRate}
	if policy == "" {
		return cfg, nil
	}
	validate, err := risk.NewPolicy(risk.PolicyConfig{Kind: policy, Gap: gap})
	if err != nil {
		return cfg, err
	}
	cfg.Validate = validate
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDecimalRequired parses an exact decimal, falling back to defaultValue when unset.
func getEnvAsDecimalRequired(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
