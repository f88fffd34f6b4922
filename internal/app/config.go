package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	Backend      string        `default:"postgres" usage:"Storage backend: postgres, mongo or memory"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (CART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	StoreTimeout time.Duration `default:"3s" usage:"Upper bound for a single store call" flag:"store-timeout"`
	Migrate      bool          `default:"true" usage:"Apply the embedded schema or indexes on startup"`
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PostgresConfig tunes the connection pool of the postgres backend. Zero
// values keep the pgxpool defaults.
type PostgresConfig struct {
	MaxConns        int32         `usage:"Maximum pool connections" flag:"postgres-max-conns"`
	MinConns        int32         `usage:"Connections kept open when idle" flag:"postgres-min-conns"`
	MaxConnLifetime time.Duration `default:"1h" usage:"Connection lifetime before it is recycled" flag:"postgres-max-conn-lifetime"`
	MaxConnIdleTime time.Duration `default:"30m" usage:"Idle time before a connection is closed" flag:"postgres-max-conn-idle-time"`
}

// MongoConfig selects the MongoDB deployment for the mongo backend.
type MongoConfig struct {
	URI      string `usage:"MongoDB connection URI (CART_MONGO_URI or MONGODB_URI)"`
	Database string `default:"shoppingDB" usage:"MongoDB database name"`
}

// RedisConfig controls the product cache. An empty URL disables it.
type RedisConfig struct {
	URL    string        `usage:"Redis URL for the product cache (CART_REDIS_URL or REDIS_URL)"`
	TTL    time.Duration `default:"15m" usage:"Base TTL of cached products"`
	Jitter time.Duration `default:"5m" usage:"Random extra TTL added per entry"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
	MaxAge  int      `default:"86400" usage:"Preflight cache lifetime in seconds" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CART",
		Files:     []string{"config.yaml", "/etc/cart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backend has its connection settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set CART_DATABASE_URL or DATABASE_URL")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo URI is required: set CART_MONGO_URI or MONGODB_URI")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongo database name is required")
		}
	case BackendMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.Backend)
	}
	if c.Postgres.MaxConns < 0 || c.Postgres.MinConns < 0 {
		return errors.New("postgres pool sizes must not be negative")
	}
	if c.StoreTimeout <= 0 {
		return errors.Errorf("store timeout must be positive, got %s", c.StoreTimeout)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Mongo.URI, "MONGODB_URI")
	fallback(&c.Redis.URL, "REDIS_URL")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
