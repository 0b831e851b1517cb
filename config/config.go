package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, loaded from the environment
type Config struct {
	Port        string
	Environment string
	JWTSecret   string

	// Bootstrap operator credentials, used only when the account table is empty
	AdminUsername string
	AdminPassword string

	// Cache
	CachePath string

	// Vendor data gateway
	VendorBaseURL string
	VendorToken   string
	VendorTimeout time.Duration
	VendorRate    float64 // requests per second
	SnapshotURL   string  // bulk snapshot endpoint, empty disables the fast path

	// Fetch retry (per vendor request)
	FetchRetryTimes  int
	FetchBackoffBase time.Duration

	// Sync
	SyncRetryTimes    int
	SyncRetryInterval time.Duration
	BatchSize         int
	BatchCooldown     time.Duration

	// Scheduler intervals
	StockListInterval  time.Duration
	MarketDataInterval time.Duration
	IndexDataInterval  time.Duration
	SchedulerAutoStart bool

	// Retention windows for the cleanup job
	SpotRetentionDays       int
	IndexRetentionDays      int
	HistoricalRetentionDays int

	// Optional Mongo mirror
	MongoURI string
	MongoDB  string
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change-me"),

		CachePath: getEnv("CACHE_PATH", "data/stock_cache.db"),

		VendorBaseURL: getEnv("VENDOR_BASE_URL", "http://localhost:9090"),
		VendorToken:   getEnv("VENDOR_TOKEN", ""),
		VendorTimeout: getEnvDuration("VENDOR_TIMEOUT_SECONDS", 30*time.Second),
		VendorRate:    getEnvFloat("VENDOR_RATE_LIMIT", 5),
		SnapshotURL:   getEnv("SNAPSHOT_URL", ""),

		FetchRetryTimes:  getEnvInt("FETCH_RETRY_TIMES", 3),
		FetchBackoffBase: getEnvDuration("FETCH_BACKOFF_BASE_SECONDS", 2*time.Second),

		SyncRetryTimes:    getEnvInt("SYNC_RETRY_TIMES", 3),
		SyncRetryInterval: getEnvDuration("SYNC_RETRY_INTERVAL_SECONDS", 5*time.Second),
		BatchSize:         getEnvInt("SYNC_BATCH_SIZE", 200),
		BatchCooldown:     getEnvDuration("SYNC_BATCH_COOLDOWN_SECONDS", 2*time.Second),

		StockListInterval:  getEnvDuration("STOCK_LIST_INTERVAL_SECONDS", 24*time.Hour),
		MarketDataInterval: getEnvDuration("MARKET_DATA_INTERVAL_SECONDS", 5*time.Minute),
		IndexDataInterval:  getEnvDuration("INDEX_DATA_INTERVAL_SECONDS", 5*time.Minute),
		SchedulerAutoStart: getEnvBool("SCHEDULER_AUTO_START", true),

		SpotRetentionDays:       getEnvInt("SPOT_RETENTION_DAYS", 30),
		IndexRetentionDays:      getEnvInt("INDEX_RETENTION_DAYS", 365),
		HistoricalRetentionDays: getEnvInt("HISTORICAL_RETENTION_DAYS", 1825),

		MongoURI: getEnv("MONGODB_URI", ""),
		MongoDB:  getEnv("MONGODB_DATABASE", "ashare_archive"),
	}

	AppConfig = config
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt parses an integer environment variable with a default
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvFloat parses a float environment variable with a default
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvBool parses a boolean environment variable with a default
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getEnvDuration parses a duration given in seconds with a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(n) * time.Second
}
