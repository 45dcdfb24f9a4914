package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transport selects how the client talks to the remote transfer API
type Transport string

const (
	TransportREST Transport = "rest"
	TransportGRPC Transport = "grpc"
)

// Config holds the runtime settings of the transfer client and the sandbox
type Config struct {
	APIURL      string
	GRPCAddr    string
	Transport   Transport
	APIToken    string
	Username    string
	UserID      string
	HTTPTimeout time.Duration
	HTTPRetries int

	PollInterval  time.Duration
	PollMaxErrors int

	SkipPinCheck bool
	DevPIN       string

	RedisAddr      string
	RedisPass      string
	SecureStoreKey string

	DBConnStr string

	LogLevel    string
	Development bool

	SandboxHTTPAddr string
	SandboxGRPCAddr string
}

// Load reads the configuration from the environment, after an optional .env file
func Load() (Config, error) {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	cfg := Config{
		APIURL:          getEnv("TRANSFA_API_URL", "http://localhost:8081"),
		GRPCAddr:        getEnv("TRANSFA_GRPC_ADDR", "localhost:8080"),
		Transport:       Transport(strings.ToLower(getEnv("TRANSFA_TRANSPORT", string(TransportREST)))),
		APIToken:        getEnv("TRANSFA_API_TOKEN", "dev-token"),
		Username:        getEnv("TRANSFA_USERNAME", "alice"),
		UserID:          os.Getenv("TRANSFA_USER_ID"),
		HTTPRetries:     atoiOrDefault(getEnv("TRANSFA_HTTP_RETRIES", "3"), 3, 0),
		PollMaxErrors:   atoiOrDefault(getEnv("TRANSFA_POLL_MAX_ERRORS", "5"), 5, 1),
		DevPIN:          os.Getenv("TRANSFA_DEV_PIN"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:       os.Getenv("REDIS_PASS"),
		SecureStoreKey:  os.Getenv("SECURESTORE_KEY"),
		DBConnStr:       dbConnStr(),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		SandboxHTTPAddr: getEnv("SANDBOX_HTTP_ADDR", ":8081"),
		SandboxGRPCAddr: getEnv("SANDBOX_GRPC_ADDR", ":8080"),
	}

	var err error
	if cfg.HTTPTimeout, err = time.ParseDuration(getEnv("TRANSFA_HTTP_TIMEOUT", "15s")); err != nil {
		return Config{}, fmt.Errorf("invalid TRANSFA_HTTP_TIMEOUT: %w", err)
	}
	if cfg.PollInterval, err = time.ParseDuration(getEnv("TRANSFA_POLL_INTERVAL", "3s")); err != nil {
		return Config{}, fmt.Errorf("invalid TRANSFA_POLL_INTERVAL: %w", err)
	}
	if cfg.SkipPinCheck, err = parseBool("TRANSFA_SKIP_PIN_CHECK", false); err != nil {
		return Config{}, err
	}
	if cfg.Development, err = parseBool("LOG_DEVELOPMENT", false); err != nil {
		return Config{}, err
	}

	switch cfg.Transport {
	case TransportREST, TransportGRPC:
	default:
		return Config{}, fmt.Errorf("unknown TRANSFA_TRANSPORT %q", cfg.Transport)
	}

	return cfg, nil
}

// dbConnStr builds the Postgres connection string, preferring DB_CONN_STR
func dbConnStr() string {
	if conn := os.Getenv("DB_CONN_STR"); conn != "" {
		return conn
	}
	if os.Getenv("DB_HOST") == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "transfa"),
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// atoiOrDefault parses s, falling back to def when it is not a number or below floor
func atoiOrDefault(s string, def, floor int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i < floor {
		return def
	}
	return i
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
