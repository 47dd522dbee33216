package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/railsettle/pkg/logger"
)

const (
	// DefaultAPIPort defines the default port for the protocol API
	DefaultAPIPort = "8000"

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultChainID is Base Sepolia
	DefaultChainID = 84532

	// DefaultGasMultiplier adds a 10% buffer to the suggested gas price
	DefaultGasMultiplier = 1.1

	// DefaultPollInterval defines the delay between poll attempts
	DefaultPollInterval = 2 * time.Second

	// DefaultPollMaxAttempts defines the attempts of a poll before it times out
	DefaultPollMaxAttempts = 30

	// DefaultAuctionWindow defines how long bids are collected after the first one arrives
	DefaultAuctionWindow = 10 * time.Second

	// DefaultAutoCommit defines whether created intents are committed automatically
	DefaultAutoCommit = false

	// DefaultWorkerCount defines the default number of auto-commit workers
	DefaultWorkerCount = 4

	// DefaultEmergencyTimeout defines how long a solver has to settle a claimed payment
	DefaultEmergencyTimeout = 24 * time.Hour

	// DefaultOracleFreshnessWindow defines the maximum age of a claim accepted by the oracle
	DefaultOracleFreshnessWindow = 24 * time.Hour

	// DefaultBondBps is the solver bond in basis points of the payment (10%)
	DefaultBondBps = 1000

	// DefaultNATSSubjectPrefix prefixes transition event subjects
	DefaultNATSSubjectPrefix = "railsettle.intents"

	// DefaultSolverRateLimit defines the sustained solution submissions per second per solver
	DefaultSolverRateLimit = 5.0

	// DefaultSolverRateBurst defines the submission burst per solver
	DefaultSolverRateBurst = 10

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultLogFormat is the colored text logger
	DefaultLogFormat = "text"
)

func getEnvPort(name, fallback string) (string, error) {
	port := os.Getenv(name)
	if port == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid port", name, port)
	}
	return port, nil
}

func getEnvBool(name string, fallback bool) (bool, error) {
	value := os.Getenv(name)
	switch value {
	case "":
		return fallback, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvPositiveInt(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", name, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return n, nil
}

func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return parsed, nil
}

func getEnvURL(name string, schemes ...string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("invalid %s value: must be a valid URL", name)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return value, nil
		}
	}
	return "", fmt.Errorf("invalid %s scheme %q, expected one of %s", name, parsed.Scheme, strings.Join(schemes, ", "))
}

// GetEnvAPIPort returns the API server port from environment variables
func GetEnvAPIPort() (string, error) {
	return getEnvPort("API_PORT", DefaultAPIPort)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	return getEnvPort("METRICS_PORT", DefaultMetricsPort)
}

// GetEnvDatabaseURL returns the Postgres URL, empty selects the in-memory ledger
func GetEnvDatabaseURL() (string, error) {
	return getEnvURL("DATABASE_URL", "postgres", "postgresql")
}

// GetEnvChainID returns the target chain id from environment variables
func GetEnvChainID() (int, error) {
	return getEnvPositiveInt("CHAIN_ID", DefaultChainID)
}

// GetEnvRPCURL returns the RPC endpoint, defaulting to the public endpoint of the chain
func GetEnvRPCURL(chainID int) (string, error) {
	rpc, err := getEnvURL("RPC_URL", "http", "https", "ws", "wss")
	if err != nil {
		return "", err
	}
	if rpc == "" {
		rpc = GetDefaultRPCURL(chainID)
	}
	return rpc, nil
}

// GetEnvZKRailAddress returns the ZKRail contract address, defaulting to the known deployment of the chain
func GetEnvZKRailAddress(chainID int) (string, error) {
	address := os.Getenv("ZKRAIL_ADDRESS")
	if address == "" {
		return GetZKRailAddress(chainID), nil
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid ZKRAIL_ADDRESS value: %s, must be a valid Ethereum address", address)
	}
	return address, nil
}

// GetEnvGasMultiplier returns the gas price multiplier from environment variables
func GetEnvGasMultiplier() (float64, error) {
	value := os.Getenv("GAS_MULTIPLIER")
	if value == "" {
		return DefaultGasMultiplier, nil
	}
	multiplier, err := strconv.ParseFloat(value, 64)
	if err != nil || multiplier <= 0 {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a positive number", value)
	}
	return multiplier, nil
}

// GetEnvPollInterval returns the poll interval from environment variables
func GetEnvPollInterval() (time.Duration, error) {
	return getEnvDuration("POLL_INTERVAL", DefaultPollInterval)
}

// GetEnvPollMaxAttempts returns the poll attempt limit from environment variables
func GetEnvPollMaxAttempts() (int, error) {
	return getEnvPositiveInt("POLL_MAX_ATTEMPTS", DefaultPollMaxAttempts)
}

// GetEnvAuctionWindow returns the auction window from environment variables
func GetEnvAuctionWindow() (time.Duration, error) {
	value := os.Getenv("AUCTION_WINDOW")
	if value == "" {
		return DefaultAuctionWindow, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("invalid AUCTION_WINDOW value: %s, must be a non-negative duration", value)
	}
	return parsed, nil
}

// GetEnvAutoCommit returns whether created intents are committed automatically
func GetEnvAutoCommit() (bool, error) {
	return getEnvBool("AUTO_COMMIT", DefaultAutoCommit)
}

// GetEnvWorkerCount returns the number of workers from environment variables
func GetEnvWorkerCount() (int, error) {
	return getEnvPositiveInt("WORKER_COUNT", DefaultWorkerCount)
}

// GetEnvEmergencyTimeout returns the emergency resolution timeout from environment variables
func GetEnvEmergencyTimeout() (time.Duration, error) {
	return getEnvDuration("EMERGENCY_TIMEOUT", DefaultEmergencyTimeout)
}

// GetEnvOracleFreshnessWindow returns the oracle staleness ceiling from environment variables
func GetEnvOracleFreshnessWindow() (time.Duration, error) {
	return getEnvDuration("ORACLE_FRESHNESS_WINDOW", DefaultOracleFreshnessWindow)
}

// GetEnvBondBps returns the solver bond in basis points from environment variables
func GetEnvBondBps() (int64, error) {
	value := os.Getenv("BOND_BPS")
	if value == "" {
		return DefaultBondBps, nil
	}
	bps, err := strconv.ParseInt(value, 10, 64)
	if err != nil || bps < 0 || bps > 10000 {
		return 0, fmt.Errorf("invalid BOND_BPS value: %s, must be between 0 and 10000", value)
	}
	return bps, nil
}

// GetEnvRedisURL returns the Redis URL, empty selects the in-memory task store
func GetEnvRedisURL() (string, error) {
	return getEnvURL("REDIS_URL", "redis", "rediss")
}

// GetEnvNATSURL returns the NATS URL, empty disables event publishing
func GetEnvNATSURL() (string, error) {
	return getEnvURL("NATS_URL", "nats", "tls")
}

// GetEnvNATSSubjectPrefix returns the event subject prefix from environment variables
func GetEnvNATSSubjectPrefix() string {
	prefix := strings.Trim(os.Getenv("NATS_SUBJECT_PREFIX"), ".")
	if prefix == "" {
		return DefaultNATSSubjectPrefix
	}
	return prefix
}

// GetEnvSolverRateLimit returns the per-solver submission rate from environment variables
func GetEnvSolverRateLimit() (float64, error) {
	value := os.Getenv("SOLVER_RATE_LIMIT")
	if value == "" {
		return DefaultSolverRateLimit, nil
	}
	limit, err := strconv.ParseFloat(value, 64)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid SOLVER_RATE_LIMIT value: %s, must be a positive number", value)
	}
	return limit, nil
}

// GetEnvSolverRateBurst returns the per-solver submission burst from environment variables
func GetEnvSolverRateBurst() (int, error) {
	return getEnvPositiveInt("SOLVER_RATE_BURST", DefaultSolverRateBurst)
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %v", err)
	}
	return level, nil
}

// GetEnvLogColoring returns whether colored log output is enabled
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

// GetEnvLogFormat returns the log format, text or json
func GetEnvLogFormat() (string, error) {
	format := os.Getenv("LOG_FORMAT")
	switch format {
	case "":
		return DefaultLogFormat, nil
	case "text", "json":
		return format, nil
	}
	return "", fmt.Errorf("invalid LOG_FORMAT value: %s, must be 'text' or 'json'", format)
}
