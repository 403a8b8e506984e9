package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
type Config struct {
	App       AppConfig
	Log       LogConfig
	Container ContainerConfig
	Inspector InspectorConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // console | json
}

type ContainerConfig struct {
	// Definitions is a .json, .yaml or .yml file loaded at bootstrap.
	Definitions string
}

type InspectorConfig struct {
	Enabled         bool
	Addr            string
	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	appEnv := env("APP_ENV", "local")
	format := "console"
	if appEnv == "production" {
		format = "json"
	}

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "LightContainer"),
			Env:   appEnv,
			Debug: envBool("APP_DEBUG", true),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", format),
		},
		Container: ContainerConfig{
			Definitions: env("CONTAINER_DEFINITIONS", ""),
		},
		Inspector: InspectorConfig{
			Enabled:         envBool("INSPECTOR_ENABLED", false),
			Addr:            env("INSPECTOR_ADDR", ":8090"),
			ShutdownTimeout: time.Duration(GetInt("INSPECTOR_SHUTDOWN_SECONDS", 5)) * time.Second,
		},
	}
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
