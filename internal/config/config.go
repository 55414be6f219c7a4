package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	// Content
	ContentDir string

	// Auth
	AdminAPIKey string

	// Diagrams
	DiagramEngine         string // cli, kroki or none
	MermaidCLI            string
	KrokiURL              string
	DiagramTheme          string
	DiagramWait           time.Duration
	DiagramCacheTTL       time.Duration
	MaxConcurrentDiagrams int

	// Pageviews
	PageviewBackend string // memory, sqlite, kv or nats
	KVURL           string
	KVToken         string
	NATSURL         string
	NATSBucket      string

	// Persistence
	SQLitePath string
	CacheCodec string

	// Builds
	Watch           bool
	WatchDebounce   time.Duration
	MaxQueueSize    int
	BuildTTL        time.Duration
	CleanupInterval time.Duration
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() Config {
	cfg := Config{
		Port:     envOr("PORT", "3000"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		ContentDir: envOr("CONTENT_DIR", "content"),

		AdminAPIKey: os.Getenv("FOLIO_ADMIN_KEY"),

		DiagramEngine:         envOr("DIAGRAM_ENGINE", "cli"),
		MermaidCLI:            envOr("MERMAID_CLI", "mmdc"),
		KrokiURL:              os.Getenv("KROKI_URL"),
		DiagramTheme:          envOr("DIAGRAM_THEME", "dark"),
		DiagramWait:           envDuration("DIAGRAM_WAIT", 10*time.Second),
		DiagramCacheTTL:       envDuration("DIAGRAM_CACHE_TTL", 24*time.Hour),
		MaxConcurrentDiagrams: envInt("MAX_CONCURRENT_DIAGRAMS", 4),

		PageviewBackend: envOr("PAGEVIEW_BACKEND", "sqlite"),
		KVURL:           os.Getenv("KV_REST_API_URL"),
		KVToken:         os.Getenv("KV_REST_API_TOKEN"),
		NATSURL:         envOr("NATS_URL", "nats://127.0.0.1:4222"),
		NATSBucket:      envOr("NATS_BUCKET", "pageviews"),

		SQLitePath: envOr("SQLITE_PATH", "folio.db"),
		CacheCodec: envOr("CACHE_CODEC", "zstd"),

		Watch:           envBool("WATCH", false),
		WatchDebounce:   envDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		MaxQueueSize:    envInt("MAX_QUEUE_SIZE", 4),
		BuildTTL:        envDuration("BUILD_TTL", 1*time.Hour),
		CleanupInterval: envDuration("CLEANUP_INTERVAL", 5*time.Minute),
	}

	if cfg.MaxConcurrentDiagrams <= 0 {
		cfg.MaxConcurrentDiagrams = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 4
	}
	if cfg.DiagramWait <= 0 {
		cfg.DiagramWait = 10 * time.Second
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = 500 * time.Millisecond
	}
	if cfg.BuildTTL <= 0 {
		cfg.BuildTTL = 1 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	return cfg
}

func (c Config) Validate() error {
	if c.ContentDir == "" {
		return fmt.Errorf("CONTENT_DIR is required")
	}
	switch c.DiagramEngine {
	case "cli", "none":
	case "kroki":
		if c.KrokiURL == "" {
			return fmt.Errorf("KROKI_URL is required when DIAGRAM_ENGINE=kroki")
		}
	default:
		return fmt.Errorf("unknown DIAGRAM_ENGINE %q", c.DiagramEngine)
	}
	switch c.PageviewBackend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when PAGEVIEW_BACKEND=sqlite")
		}
	case "kv":
		if c.KVURL == "" || c.KVToken == "" {
			return fmt.Errorf("KV_REST_API_URL and KV_REST_API_TOKEN are required when PAGEVIEW_BACKEND=kv")
		}
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when PAGEVIEW_BACKEND=nats")
		}
	default:
		return fmt.Errorf("unknown PAGEVIEW_BACKEND %q", c.PageviewBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
