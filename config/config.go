package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	EngineConfig    EngineConfig    `json:"engine"`
	MeshConfig      MeshConfig      `json:"mesh"`
	StrategyConfig  StrategyConfig  `json:"strategy"`
	ConsensusConfig ConsensusConfig `json:"consensus"`
	SweeperConfig   SweeperConfig   `json:"sweeper"`
	RouterConfig    RouterConfig    `json:"router"`
	GateConfig      GateConfig      `json:"gate"`
	MarketConfig    MarketConfig    `json:"market"`
	ExecutorConfig  ExecutorConfig  `json:"executor"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	VaultConfig     VaultConfig     `json:"vault"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
}

// EngineConfig holds the cycle loop configuration
type EngineConfig struct {
	CycleInterval   time.Duration `json:"cycle_interval"`    // Time between cycles
	CycleSoftBudget time.Duration `json:"cycle_soft_budget"` // Skip remaining entry evaluations past this
	SnapshotEvery   int           `json:"snapshot_every"`    // Persist engine state every N cycles
	DryRun          bool          `json:"dry_run"`           // Paper executor only, no live orders
	Seed            int64         `json:"seed"`              // Deterministic PRNG seed (0 = time-based)
	FundingAsset    string        `json:"funding_asset"`     // Asset new entries are funded from
	BaseOrderQuote  float64       `json:"base_order_quote"`  // Quote amount per entry before budget scaling
}

// MeshConfig holds SignalMesh and Colony configuration
type MeshConfig struct {
	ColonyCount      int     `json:"colony_count"`
	WorkersPerColony int     `json:"workers_per_colony"`
	StartEquity      float64 `json:"start_equity"`       // Per worker
	TargetPerWorker  float64 `json:"target_per_worker"`  // Equity goal before a worker stops trading
	HarvestRate      float64 `json:"harvest_rate"`       // Fraction of profit harvested (default 0.10)
	HarvestEvery     int     `json:"harvest_every"`      // Cycles between harvest/split passes
	Plasticity       float64 `json:"plasticity"`         // Edge learning rate
	MinProfitTarget  float64 `json:"min_profit_target"`  // ShouldTakeTrade rejection floor
	FullRiskProfit   float64 `json:"full_risk_profit"`   // Profit at which required confidence hits its floor
	MaxConfidenceReq float64 `json:"max_confidence_req"` // Required confidence at MinProfitTarget
}

// StrategyConfig holds StrategyInstance configuration
type StrategyConfig struct {
	InstanceCount int     `json:"instance_count"` // One per strategy kind when 10
	StartEquity   float64 `json:"start_equity"`   // Per instance
	TrustStep     float64 `json:"trust_step"`     // EMA rate for Observe trust updates
}

// ConsensusConfig holds weighted-voting configuration
type ConsensusConfig struct {
	Threshold float64 `json:"threshold"` // Winning action must carry this vote share (default 0.6)
}

// SweeperConfig holds ProfitSweeper configuration
type SweeperConfig struct {
	ThresholdPct   float64       `json:"threshold_pct"`   // Inclusive profit threshold (default 0.002)
	ReactionBudget time.Duration `json:"reaction_budget"` // In-memory close must finish within this
}

// RouterConfig holds ConversionRouter configuration
type RouterConfig struct {
	GraphTTL    time.Duration `json:"graph_ttl"`    // Asset graph rebuild interval
	MaxHops     int           `json:"max_hops"`     // FindAllPaths bound
	FeeRate     float64       `json:"fee_rate"`     // Per-hop fee (default 0.001)
	SlippageRate float64      `json:"slippage_rate"` // Per-hop slippage (default 0.0005)
}

// GateConfig holds ExecutionGate configuration
type GateConfig struct {
	TopMovers        int     `json:"top_movers"`        // preferredSymbols size in NEUTRAL mode
	OverrideBar      float64 `json:"override_bar"`      // Confidence needed to buy outside preferred set
	MaxPositionsTotal int    `json:"max_positions_total"`
}

// MarketConfig holds market data source configuration
type MarketConfig struct {
	WSEndpoint     string   `json:"ws_endpoint"`
	Symbols        []string `json:"symbols"`
	Venues         []string `json:"venues"`
	ReplayFile     string   `json:"replay_file"`     // Deterministic replay source when set
	StaleTolerance time.Duration `json:"stale_tolerance"` // Drop a source whose snapshot is older
}

// ExecutorConfig holds order executor configuration
type ExecutorConfig struct {
	Venue       string `json:"venue"`
	BaseURL     string `json:"base_url"`
	Paper       bool   `json:"paper"` // Deterministic paper fills
	OrderIDTag  string `json:"order_id_tag"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	OperatorUser         string        `json:"operator_user"`
	OperatorPassHash     string        `json:"operator_pass_hash"` // bcrypt hash
}

// VaultConfig holds HashiCorp Vault configuration for venue credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// DatabaseConfig holds PostgreSQL configuration for snapshot persistence
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for state publishing
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// Base config from file when present, env overrides take precedence
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyDefaults fills the empirically chosen defaults. The thresholds here
// (sweep 0.2%, consensus 60%, harvest 10%) are configuration, not fixed truths.
func applyDefaults(cfg *Config) {
	if cfg.EngineConfig.CycleInterval == 0 {
		cfg.EngineConfig.CycleInterval = 5 * time.Second
	}
	if cfg.EngineConfig.CycleSoftBudget == 0 {
		cfg.EngineConfig.CycleSoftBudget = 2 * time.Second
	}
	if cfg.EngineConfig.SnapshotEvery == 0 {
		cfg.EngineConfig.SnapshotEvery = 60
	}
	if cfg.EngineConfig.FundingAsset == "" {
		cfg.EngineConfig.FundingAsset = "USDT"
	}
	if cfg.EngineConfig.BaseOrderQuote == 0 {
		cfg.EngineConfig.BaseOrderQuote = 100
	}

	if cfg.MeshConfig.ColonyCount == 0 {
		cfg.MeshConfig.ColonyCount = 4
	}
	if cfg.MeshConfig.WorkersPerColony == 0 {
		cfg.MeshConfig.WorkersPerColony = 8
	}
	if cfg.MeshConfig.StartEquity == 0 {
		cfg.MeshConfig.StartEquity = 100.0
	}
	if cfg.MeshConfig.TargetPerWorker == 0 {
		cfg.MeshConfig.TargetPerWorker = 150.0
	}
	if cfg.MeshConfig.HarvestRate == 0 {
		cfg.MeshConfig.HarvestRate = 0.10
	}
	if cfg.MeshConfig.HarvestEvery == 0 {
		cfg.MeshConfig.HarvestEvery = 10
	}
	if cfg.MeshConfig.Plasticity == 0 {
		cfg.MeshConfig.Plasticity = 0.05
	}
	if cfg.MeshConfig.MinProfitTarget == 0 {
		cfg.MeshConfig.MinProfitTarget = 0.50
	}
	if cfg.MeshConfig.FullRiskProfit == 0 {
		cfg.MeshConfig.FullRiskProfit = 5.0
	}
	if cfg.MeshConfig.MaxConfidenceReq == 0 {
		cfg.MeshConfig.MaxConfidenceReq = 0.9
	}

	if cfg.StrategyConfig.InstanceCount == 0 {
		cfg.StrategyConfig.InstanceCount = 10
	}
	if cfg.StrategyConfig.StartEquity == 0 {
		cfg.StrategyConfig.StartEquity = 1000.0
	}
	if cfg.StrategyConfig.TrustStep == 0 {
		cfg.StrategyConfig.TrustStep = 0.1
	}

	if cfg.ConsensusConfig.Threshold == 0 {
		cfg.ConsensusConfig.Threshold = 0.6
	}

	if cfg.SweeperConfig.ThresholdPct == 0 {
		cfg.SweeperConfig.ThresholdPct = 0.002
	}
	if cfg.SweeperConfig.ReactionBudget == 0 {
		cfg.SweeperConfig.ReactionBudget = 50 * time.Millisecond
	}

	if cfg.RouterConfig.GraphTTL == 0 {
		cfg.RouterConfig.GraphTTL = 5 * time.Minute
	}
	if cfg.RouterConfig.MaxHops == 0 {
		cfg.RouterConfig.MaxHops = 3
	}
	if cfg.RouterConfig.FeeRate == 0 {
		cfg.RouterConfig.FeeRate = 0.001
	}
	if cfg.RouterConfig.SlippageRate == 0 {
		cfg.RouterConfig.SlippageRate = 0.0005
	}

	if cfg.GateConfig.TopMovers == 0 {
		cfg.GateConfig.TopMovers = 5
	}
	if cfg.GateConfig.OverrideBar == 0 {
		cfg.GateConfig.OverrideBar = 0.9
	}
	if cfg.GateConfig.MaxPositionsTotal == 0 {
		cfg.GateConfig.MaxPositionsTotal = 20
	}

	if cfg.MarketConfig.StaleTolerance == 0 {
		cfg.MarketConfig.StaleTolerance = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	// Engine
	cfg.EngineConfig.DryRun = getEnvOrDefault("ENGINE_DRY_RUN", "true") == "true"
	cfg.EngineConfig.CycleInterval = getEnvDurationOrDefault("ENGINE_CYCLE_INTERVAL", cfg.EngineConfig.CycleInterval)
	cfg.EngineConfig.Seed = int64(getEnvIntOrDefault("ENGINE_SEED", int(cfg.EngineConfig.Seed)))

	// Market data
	cfg.MarketConfig.WSEndpoint = getEnvOrDefault("MARKET_WS_ENDPOINT", cfg.MarketConfig.WSEndpoint)
	if cfg.MarketConfig.WSEndpoint == "" {
		cfg.MarketConfig.WSEndpoint = "wss://stream.binance.com:9443/ws"
	}
	cfg.MarketConfig.ReplayFile = getEnvOrDefault("MARKET_REPLAY_FILE", cfg.MarketConfig.ReplayFile)

	// Executor
	cfg.ExecutorConfig.Venue = getEnvOrDefault("EXECUTOR_VENUE", "binance")
	cfg.ExecutorConfig.BaseURL = getEnvOrDefault("EXECUTOR_BASE_URL", "https://api.binance.com")
	cfg.ExecutorConfig.Paper = getEnvOrDefault("EXECUTOR_PAPER", "true") == "true"
	cfg.ExecutorConfig.OrderIDTag = getEnvOrDefault("EXECUTOR_ORDER_ID_TAG", "mesh")

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server
	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Auth
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 1*time.Hour)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", 720*time.Hour)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "mesh-engine/venue-keys")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Database
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "mesh")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "mesh_engine")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "disable")

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
