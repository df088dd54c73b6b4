package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Equities   EquitiesConfig   `mapstructure:"equities"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Evolution  EvolutionConfig  `mapstructure:"evolution"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Narrative  NarrativeConfig  `mapstructure:"narrative"`
	RedTeam    RedTeamConfig    `mapstructure:"redteam"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Paths      PathsConfig      `mapstructure:"paths"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Vault      VaultConfig      `mapstructure:"vault"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "console" or "json"
}

// ExchangeConfig contains exchange API settings
type ExchangeConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	SecretKey     string  `mapstructure:"secret_key"`
	Passphrase    string  `mapstructure:"passphrase"`
	Testnet       bool    `mapstructure:"testnet"`
	BaselinePrice float64 `mapstructure:"baseline_price"` // synthetic feed anchor
	RateLimitRPS  float64 `mapstructure:"rate_limit_rps"`
	TimeoutMS     int     `mapstructure:"timeout_ms"`
}

// EquitiesConfig contains the equities data provider settings
type EquitiesConfig struct {
	APIKey    string   `mapstructure:"api_key"`
	SecretKey string   `mapstructure:"secret_key"`
	Endpoint  string   `mapstructure:"endpoint"`
	Tickers   []string `mapstructure:"tickers"` // primary first
	TimeoutMS int      `mapstructure:"timeout_ms"`
}

// LLMConfig contains reasoning service settings
type LLMConfig struct {
	Endpoint           string  `mapstructure:"endpoint"`
	APIKey             string  `mapstructure:"api_key"`
	Model              string  `mapstructure:"model"`
	Temperature        float64 `mapstructure:"temperature"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	AnalysisTimeoutMS  int     `mapstructure:"analysis_timeout_ms"`
	EvolutionTimeoutMS int     `mapstructure:"evolution_timeout_ms"`
}

// TradingConfig contains trading parameters
type TradingConfig struct {
	Symbol                   string  `mapstructure:"symbol"`
	Timeframe                string  `mapstructure:"timeframe"`
	InitialEquity            float64 `mapstructure:"initial_equity"`
	KillSwitchThreshold      float64 `mapstructure:"kill_switch_threshold"` // fraction, e.g. 0.03
	StabilityLockHours       int     `mapstructure:"stability_lock_hours"`
	ReasoningIntervalMinutes int     `mapstructure:"reasoning_interval_minutes"`
}

// EvolutionConfig contains prompt-evolution and shadow-promotion settings
type EvolutionConfig struct {
	IntervalHours                 int     `mapstructure:"interval_hours"`
	PromotionThresholdIterations  int     `mapstructure:"promotion_threshold_iterations"`
	SharpeRatioThreshold          float64 `mapstructure:"sharpe_ratio_threshold"`
	ExplorerIntervalHours         int     `mapstructure:"explorer_interval_hours"`
	ExplorerTemperature           float64 `mapstructure:"explorer_temperature"`
	FailedPredictionMinConfidence float64 `mapstructure:"failed_prediction_min_confidence"`
}

// BacktestConfig contains deployment-gate thresholds
type BacktestConfig struct {
	MinSharpeDeploy   float64 `mapstructure:"min_sharpe_deploy"`
	MaxDrawdownDeploy float64 `mapstructure:"max_drawdown_deploy"` // fraction
	InitialCapital    float64 `mapstructure:"initial_capital"`
}

// OracleConfig contains macro-risk oracle settings
type OracleConfig struct {
	SPYThreshold    float64 `mapstructure:"spy_threshold"` // fraction, e.g. -0.01
	IntervalMinutes int     `mapstructure:"interval_minutes"`
}

// NarrativeConfig contains whale-flow settings
type NarrativeConfig struct {
	WhaleThreshold  float64 `mapstructure:"whale_threshold"` // base-asset units
	IntervalMinutes int     `mapstructure:"interval_minutes"`
}

// RedTeamConfig contains adversarial-screen settings
type RedTeamConfig struct {
	FlashCrashPct        float64 `mapstructure:"flash_crash_pct"` // negative, e.g. -0.20
	MaxDrawdownThreshold float64 `mapstructure:"max_drawdown_threshold"`
	StopLossRequired     bool    `mapstructure:"stop_loss_required"`
}

// RedisConfig contains the optional market-data cache settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// NATSConfig contains event-bus settings
type NATSConfig struct {
	Embedded bool   `mapstructure:"embedded"`
	URL      string `mapstructure:"url"`
	Prefix   string `mapstructure:"prefix"`
}

// PathsConfig locates the durable artifacts
type PathsConfig struct {
	Ledger   string `mapstructure:"ledger"`
	Memory   string `mapstructure:"memory"`
	Prompts  string `mapstructure:"prompts"`
	Strategy string `mapstructure:"strategy"`
	TraceLog string `mapstructure:"trace_log"`
}

// APIConfig contains HTTP status-server settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// TelegramConfig contains the optional alert sink settings
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ALPHAWEEX")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ResolveSecrets(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "AlphaWEEX")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Exchange defaults
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.baseline_price", 90000.0)
	v.SetDefault("exchange.rate_limit_rps", 10.0)
	v.SetDefault("exchange.timeout_ms", 10000)

	// Equities defaults
	v.SetDefault("equities.endpoint", "https://data.alpaca.markets/v2")
	v.SetDefault("equities.tickers", []string{"SPY", "QQQ"})
	v.SetDefault("equities.timeout_ms", 10000)

	// LLM defaults
	v.SetDefault("llm.endpoint", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.analysis_timeout_ms", 10000)
	v.SetDefault("llm.evolution_timeout_ms", 30000)

	// Trading defaults
	v.SetDefault("trading.symbol", "BTC/USDT")
	v.SetDefault("trading.timeframe", "15m")
	v.SetDefault("trading.initial_equity", 1000.0)
	v.SetDefault("trading.kill_switch_threshold", 0.03)
	v.SetDefault("trading.stability_lock_hours", 12)
	v.SetDefault("trading.reasoning_interval_minutes", 15)

	// Evolution defaults
	v.SetDefault("evolution.interval_hours", 24)
	v.SetDefault("evolution.promotion_threshold_iterations", 100)
	v.SetDefault("evolution.sharpe_ratio_threshold", 1.2)
	v.SetDefault("evolution.explorer_interval_hours", 6)
	v.SetDefault("evolution.explorer_temperature", 1.3)
	v.SetDefault("evolution.failed_prediction_min_confidence", 0.5)

	// Backtest defaults
	v.SetDefault("backtest.min_sharpe_deploy", 1.2)
	v.SetDefault("backtest.max_drawdown_deploy", 0.05)
	v.SetDefault("backtest.initial_capital", 10000.0)

	// Oracle defaults
	v.SetDefault("oracle.spy_threshold", -0.01)
	v.SetDefault("oracle.interval_minutes", 60)

	// Narrative defaults
	v.SetDefault("narrative.whale_threshold", 1000.0)
	v.SetDefault("narrative.interval_minutes", 5)

	// Red-team defaults
	v.SetDefault("redteam.flash_crash_pct", -0.20)
	v.SetDefault("redteam.max_drawdown_threshold", 0.15)
	v.SetDefault("redteam.stop_loss_required", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 30)

	// NATS defaults
	v.SetDefault("nats.embedded", true)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.prefix", "alphaweex.")

	// Durable artifact paths
	v.SetDefault("paths.ledger", "data/predictions.db")
	v.SetDefault("paths.memory", "data/evolution_memory.json")
	v.SetDefault("paths.prompts", "prompts")
	v.SetDefault("paths.strategy", "data/active_strategy.json")
	v.SetDefault("paths.trace_log", "data/reasoning_logs.jsonl")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8090)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)

	// Vault defaults
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "alphaweex")
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCacheTTL returns the cache TTL as a duration
func (c *RedisConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetAPIAddr returns the status-server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAnalysisTimeout returns the per-analysis LLM timeout
func (c *LLMConfig) GetAnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutMS) * time.Millisecond
}

// GetEvolutionTimeout returns the evolution-call LLM timeout
func (c *LLMConfig) GetEvolutionTimeout() time.Duration {
	return time.Duration(c.EvolutionTimeoutMS) * time.Millisecond
}

// GetTimeout returns the exchange request timeout
func (c *ExchangeConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ReasoningInterval returns the reasoning-loop period
func (c *TradingConfig) ReasoningInterval() time.Duration {
	return time.Duration(c.ReasoningIntervalMinutes) * time.Minute
}

// StabilityLock returns the stability-lock duration
func (c *TradingConfig) StabilityLock() time.Duration {
	return time.Duration(c.StabilityLockHours) * time.Hour
}
