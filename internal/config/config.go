// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL         string
	ChainID        int64
	PrivateKey     string // Hex-encoded, no 0x prefix
	PlatformWallet string // Address that receives marketplace payments
	USDCContract   string

	// Security
	AdminSecret  string // Admin API secret
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // OTLP gRPC collector endpoint (optional)

	// Skill provider credentials (each optional; skills without
	// credentials register as offline)
	ReplicateToken string
	OpenAIKey      string
	PinataJWT      string
	XRPLNetwork    string // rippled WebSocket endpoint
	XRPLSeed       string
}

// Polygon mainnet defaults
const (
	DefaultRPCURL       = "https://polygon-rpc.com"
	DefaultChainID      = 137                                          // Polygon PoS
	DefaultUSDCContract = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359" // Native USDC on Polygon
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultRateLimit    = 100
	DefaultXRPLNetwork  = "wss://s.altnet.rippletest.net:51233"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:         getEnv("RPC_URL", DefaultRPCURL),
		ChainID:        getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:     os.Getenv("PRIVATE_KEY"), // Required, no default
		PlatformWallet: os.Getenv("PLATFORM_WALLET"),
		USDCContract:   getEnv("USDC_CONTRACT", DefaultUSDCContract),
		AdminSecret:    os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:   int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		ReplicateToken: os.Getenv("REPLICATE_API_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		PinataJWT:      os.Getenv("PINATA_JWT"),
		XRPLNetwork:    getEnv("XRPL_NETWORK", DefaultXRPLNetwork),
		XRPLSeed:       os.Getenv("XRPL_SEED"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}

	// Allow both with and without 0x prefix
	key := c.PrivateKey
	if len(key) == 66 && key[:2] == "0x" {
		key = key[2:]
	}
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.PlatformWallet == "" {
		return fmt.Errorf("PLATFORM_WALLET is required")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
