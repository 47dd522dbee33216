package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/speedrun-hq/railsettle/pkg/logger"
)

// Config holds the configuration for the settlement service
type Config struct {
	APIPort         string
	MetricsPort     string
	MetricsAPIKey   string
	DatabaseURL     string
	RedisURL        string
	Chain           ChainConfig
	Poll            PollConfig
	Auction         AuctionConfig
	Oracle          OracleConfig
	Events          EventsConfig
	RateLimit       RateLimitConfig
	CircuitBreaker  CircuitBreakerConfig
	LoggerConfig    LoggerConfig
	EmergencyPeriod time.Duration
	AggregatorURL   string
}

// ChainConfig holds the configuration for the settlement chain
type ChainConfig struct {
	ChainID       int
	RPCURL        string
	ZKRailAddress string
	PrivateKey    string
	GasMultiplier float64
	BondBps       int64
}

// PollConfig bounds every confirmation poll
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// AuctionConfig controls automatic commitment of winning solutions
type AuctionConfig struct {
	AutoCommit  bool
	Window      time.Duration
	WorkerCount int
}

// OracleConfig holds the validation oracle configuration
type OracleConfig struct {
	FreshnessWindow time.Duration
}

// EventsConfig holds the transition event publisher configuration
type EventsConfig struct {
	NATSURL       string
	SubjectPrefix string
}

// RateLimitConfig bounds solution submissions per solver
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
	Format   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	var (
		cfg = &Config{
			MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
			AggregatorURL: os.Getenv("AGGREGATOR_URL"),
			Events:        EventsConfig{SubjectPrefix: GetEnvNATSSubjectPrefix()},
		}
		err error
	)

	if cfg.APIPort, err = GetEnvAPIPort(); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = GetEnvMetricsPort(); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL, err = GetEnvDatabaseURL(); err != nil {
		return nil, err
	}
	if cfg.RedisURL, err = GetEnvRedisURL(); err != nil {
		return nil, err
	}
	if cfg.Events.NATSURL, err = GetEnvNATSURL(); err != nil {
		return nil, err
	}

	if cfg.Chain.ChainID, err = GetEnvChainID(); err != nil {
		return nil, err
	}
	if cfg.Chain.RPCURL, err = GetEnvRPCURL(cfg.Chain.ChainID); err != nil {
		return nil, err
	}
	if cfg.Chain.ZKRailAddress, err = GetEnvZKRailAddress(cfg.Chain.ChainID); err != nil {
		return nil, err
	}
	if cfg.Chain.GasMultiplier, err = GetEnvGasMultiplier(); err != nil {
		return nil, err
	}
	if cfg.Chain.BondBps, err = GetEnvBondBps(); err != nil {
		return nil, err
	}
	cfg.Chain.PrivateKey = os.Getenv("PRIVATE_KEY")

	if cfg.Poll.Interval, err = GetEnvPollInterval(); err != nil {
		return nil, err
	}
	if cfg.Poll.MaxAttempts, err = GetEnvPollMaxAttempts(); err != nil {
		return nil, err
	}

	if cfg.Auction.AutoCommit, err = GetEnvAutoCommit(); err != nil {
		return nil, err
	}
	if cfg.Auction.Window, err = GetEnvAuctionWindow(); err != nil {
		return nil, err
	}
	if cfg.Auction.WorkerCount, err = GetEnvWorkerCount(); err != nil {
		return nil, err
	}

	if cfg.EmergencyPeriod, err = GetEnvEmergencyTimeout(); err != nil {
		return nil, err
	}
	if cfg.Oracle.FreshnessWindow, err = GetEnvOracleFreshnessWindow(); err != nil {
		return nil, err
	}

	if cfg.RateLimit.PerSecond, err = GetEnvSolverRateLimit(); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = GetEnvSolverRateBurst(); err != nil {
		return nil, err
	}

	if cfg.CircuitBreaker.Enabled, err = GetEnvCircuitBreakerEnabled(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.Threshold, err = GetEnvCircuitBreakerThreshold(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.WindowDuration, err = GetEnvCircuitBreakerWindow(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.ResetTimeout, err = GetEnvCircuitBreakerReset(); err != nil {
		return nil, err
	}

	if cfg.LoggerConfig.Level, err = GetEnvLogLevel(); err != nil {
		return nil, err
	}
	if cfg.LoggerConfig.Coloring, err = GetEnvLogColoring(); err != nil {
		return nil, err
	}
	if cfg.LoggerConfig.Format, err = GetEnvLogFormat(); err != nil {
		return nil, err
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ChainConfigured reports whether a chain client can be dialled. Without
// PRIVATE_KEY the client is read-only: it verifies receipts but cannot transact.
func (c *Config) ChainConfigured() bool {
	return c.Chain.RPCURL != "" && c.Chain.ZKRailAddress != ""
}

// ChainEnabled reports whether a signing chain collaborator can be built
func (c *Config) ChainEnabled() bool {
	return c.ChainConfigured() && c.Chain.PrivateKey != ""
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Auction.AutoCommit && !cfg.ChainEnabled() {
		return fmt.Errorf("AUTO_COMMIT requires RPC_URL, ZKRAIL_ADDRESS and PRIVATE_KEY")
	}
	if cfg.Chain.PrivateKey != "" && cfg.Chain.ZKRailAddress == "" {
		return fmt.Errorf("ZKRAIL_ADDRESS is required for chain %d", cfg.Chain.ChainID)
	}
	if cfg.Chain.PrivateKey != "" && cfg.Chain.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required for chain %d", cfg.Chain.ChainID)
	}
	return nil
}
