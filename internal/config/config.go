package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/lexisync/pkg/models"
	"github.com/joho/godotenv"
)

// Default sync settings, mirroring the server's documented limits
const (
	DefaultMaxBatchSize    = 100
	DefaultAutoSyncMinutes = 5
	DefaultRetryCount      = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultRemoteTimeout   = 30 * time.Second
)

// SyncOptions configures the reconciler and the background scheduler
type SyncOptions struct {
	// Maximum number of items pushed or applied in a single batch
	MaxBatchSize int
	// Interval between automatic reconciliation runs (0 disables)
	AutoSyncInterval time.Duration
	// Enable the background auto-sync timer
	EnableBackgroundSync bool
	// Run a full sync once at startup
	SyncOnStartup bool
	// Direction used by automatic runs
	Direction models.SyncDirection
	// Whole-run retries for automatic syncs
	RetryCount int
	// Base delay between whole-run retries
	RetryDelay time.Duration
	// Tables reconciled by SyncAll, in order
	SyncTables []string
}

// Config holds everything read from the environment
type Config struct {
	RemoteBaseURL string
	RemoteAPIKey  string
	RemoteTimeout time.Duration
	Sync          SyncOptions
}

// Load reads .env if present and builds the configuration from
// environment variables with sensible defaults.
func Load() *Config {
	// Missing .env is fine, variables may come from the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := &Config{
		RemoteBaseURL: os.Getenv("SYNC_REMOTE_URL"),
		RemoteAPIKey:  os.Getenv("SYNC_API_KEY"),
		RemoteTimeout: durationEnv("SYNC_REMOTE_TIMEOUT_SECONDS", DefaultRemoteTimeout),
		Sync: SyncOptions{
			MaxBatchSize:         intEnv("SYNC_MAX_BATCH_SIZE", DefaultMaxBatchSize),
			AutoSyncInterval:     time.Duration(intEnv("SYNC_INTERVAL_MINUTES", DefaultAutoSyncMinutes)) * time.Minute,
			EnableBackgroundSync: boolEnv("SYNC_BACKGROUND_ENABLED", true),
			SyncOnStartup:        boolEnv("SYNC_ON_STARTUP", true),
			Direction:            directionEnv("SYNC_DIRECTION", models.DirectionBoth),
			RetryCount:           intEnv("SYNC_RETRY_COUNT", DefaultRetryCount),
			RetryDelay:           durationEnv("SYNC_RETRY_DELAY_SECONDS", DefaultRetryDelay),
			SyncTables:           tablesEnv("SYNC_TABLES", []string{"words", "learning_progress"}),
		},
	}

	if cfg.Sync.MaxBatchSize < 1 {
		cfg.Sync.MaxBatchSize = 1
	}

	return cfg
}

func intEnv(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s, using default %d", name, fallback)
	}
	return fallback
}

func boolEnv(name string, fallback bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("Warning: invalid value for %s, using default %v", name, fallback)
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
		log.Printf("Warning: invalid value for %s, using default %v", name, fallback)
	}
	return fallback
}

func directionEnv(name string, fallback models.SyncDirection) models.SyncDirection {
	switch models.SyncDirection(strings.ToLower(os.Getenv(name))) {
	case models.DirectionPush:
		return models.DirectionPush
	case models.DirectionPull:
		return models.DirectionPull
	case models.DirectionBoth:
		return models.DirectionBoth
	}
	return fallback
}

func tablesEnv(name string, fallback []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	var tables []string
	for _, t := range strings.Split(v, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return fallback
	}
	return tables
}
