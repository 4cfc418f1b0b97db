// Package config provides unified configuration for the reagent service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (REAGENT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the reagent service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Search        SearchConfig        `yaml:"search"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 300s
}

// OracleConfig holds reasoning backend settings.
type OracleConfig struct {
	BackendURL    string   `yaml:"backend_url"`    // required
	APIKey        string   `yaml:"api_key"`        // optional
	APIKeyFile    string   `yaml:"api_key_file"`   // _file variant for api_key
	Model         string   `yaml:"model"`          // default: "gpt-4o-mini"
	Temperature   *float64 `yaml:"temperature"`    // default: 0
	MaxIterations int      `yaml:"max_iterations"` // default: 10
	Retries       int      `yaml:"retries"`        // default: 3
}

// RuntimeConfig selects and tunes the execution environment.
type RuntimeConfig struct {
	Environment  string        `yaml:"environment"`   // "local" or "sandbox", default: "local"
	Python       string        `yaml:"python"`        // default: "python3"
	ExecTimeout  time.Duration `yaml:"exec_timeout"`  // default: 60s
	OutputLimit  int           `yaml:"output_limit"`  // default: 8000
	ArtifactsDir string        `yaml:"artifacts_dir"` // default: "./artifacts"
	WorkDir      string        `yaml:"work_dir"`      // default: os temp
}

// SandboxConfig holds remote sandbox collaborator settings.
type SandboxConfig struct {
	Acquirer       string        `yaml:"acquirer"`        // "static" or "kubernetes", default: "static"
	URL            string        `yaml:"url"`             // required for acquirer=static
	Template       string        `yaml:"template"`        // SandboxTemplate name for acquirer=kubernetes
	Namespace      string        `yaml:"namespace"`       // default: "default"
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`   // default: 120s
	InstallTimeout time.Duration `yaml:"install_timeout"` // default: 180s
}

// SearchConfig holds web-search collaborator settings.
type SearchConfig struct {
	Backend    string `yaml:"backend"`      // "tavily", "searxng", or "none", default: "none"
	APIKey     string `yaml:"api_key"`      // required for backend=tavily
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	BaseURL    string `yaml:"base_url"`     // required for backend=searxng
	MaxResults int    `yaml:"max_results"`  // default: 5
}

// StorageConfig holds run store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-caller request budgets. A zero budget
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
}

// JWTConfig holds JWT verification settings for auth.type=jwt.
// Exactly one of Secret (HS256) or JWKSURL (RS256) must be set.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	JWKSURL    string `yaml:"jwks_url"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
		},
		Oracle: OracleConfig{
			Model:         "gpt-4o-mini",
			MaxIterations: 10,
			Retries:       3,
		},
		Runtime: RuntimeConfig{
			Environment:  "local",
			Python:       "python3",
			ExecTimeout:  60 * time.Second,
			OutputLimit:  8000,
			ArtifactsDir: "./artifacts",
		},
		Sandbox: SandboxConfig{
			Acquirer:       "static",
			Namespace:      "default",
			ReadyTimeout:   120 * time.Second,
			InstallTimeout: 180 * time.Second,
		},
		Search: SearchConfig{
			Backend:    "none",
			MaxResults: 5,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
