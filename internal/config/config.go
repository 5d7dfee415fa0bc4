// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Defaults live in NewDefaultConfig as a struct literal. Load layers two
// sources on top: an optional .env file (github.com/joho/godotenv, which only
// fills variables that are not already set) and then the process environment.
// Everything downstream receives the typed *Config, never raw strings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by STORE_BACKEND and POSITION_BACKEND.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

// Config is the top-level configuration container.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Firestore FirestoreConfig
	Redis     RedisConfig
	Movement  MovementConfig
	Feeds     FeedsConfig
	SOS       SOSConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig picks the live-query backend (memory or firestore) and the
// position backend (memory, firestore or redis).
type StoreConfig struct {
	Backend         string
	PositionBackend string
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	// WindowLimit caps the documents a single window query returns.
	WindowLimit int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	GeoKey   string
}

// MovementConfig is the caller-side publish threshold: after the first fix, a
// device update is written only once it has moved at least MinDistanceMeters
// and MinInterval has passed since the last write.
type MovementConfig struct {
	MinDistanceMeters float64
	MinInterval       time.Duration
}

// FeedsConfig holds the two nearby feeds and the one-shot snapshot timeout.
type FeedsConfig struct {
	RidesRadiusKm   float64
	RidesLimit      int
	SOSRadiusKm     float64
	SOSLimit        int
	SnapshotTimeout time.Duration
}

type SOSConfig struct {
	// LockTTL bounds how long a trigger may hold the per-user lock.
	LockTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// NewDefaultConfig returns a Config populated with the production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:         BackendMemory,
			PositionBackend: BackendMemory,
		},
		Firestore: FirestoreConfig{
			WindowLimit: 200,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			GeoKey: "positions:geo",
		},
		Movement: MovementConfig{
			MinDistanceMeters: 10,
			MinInterval:       5 * time.Second,
		},
		Feeds: FeedsConfig{
			RidesRadiusKm:   30,
			RidesLimit:      40,
			SOSRadiusKm:     5.5,
			SOSLimit:        20,
			SnapshotTimeout: 3 * time.Second,
		},
		SOS: SOSConfig{
			LockTTL: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults overridden by .env (when present) and the
// environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := NewDefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = d
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		if !strings.HasPrefix(v, ":") && !strings.Contains(v, ":") {
			v = ":" + v
		}
		c.Server.Port = v
	}
	str("STORE_BACKEND", &c.Store.Backend)
	str("POSITION_BACKEND", &c.Store.PositionBackend)
	str("FIRESTORE_PROJECT_ID", &c.Firestore.ProjectID)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.Firestore.CredentialsFile)
	integer("FIRESTORE_WINDOW_LIMIT", &c.Firestore.WindowLimit)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	num("MOVEMENT_MIN_METERS", &c.Movement.MinDistanceMeters)
	duration("MOVEMENT_MIN_INTERVAL", &c.Movement.MinInterval)
	duration("SNAPSHOT_TIMEOUT", &c.Feeds.SnapshotTimeout)
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects backend names the server cannot wire and settings that
// would make the feeds meaningless.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFirestore:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Store.PositionBackend {
	case BackendMemory, BackendFirestore, BackendRedis:
	default:
		return fmt.Errorf("unknown POSITION_BACKEND %q", c.Store.PositionBackend)
	}
	if (c.Store.Backend == BackendFirestore || c.Store.PositionBackend == BackendFirestore) && c.Firestore.ProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
	}
	if c.Feeds.RidesRadiusKm <= 0 || c.Feeds.SOSRadiusKm <= 0 {
		return fmt.Errorf("feed radii must be positive")
	}
	return nil
}
