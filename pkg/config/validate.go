package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All failures are collected so a broken deployment surfaces every bad
// field at once.
func (c *Config) Validate() error {
	var errs []error

	// oracle.backend_url is required.
	if c.Oracle.BackendURL == "" {
		errs = append(errs, fmt.Errorf("oracle.backend_url is required"))
	}

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Oracle.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("oracle.max_iterations must be > 0, got %d", c.Oracle.MaxIterations))
	}
	if c.Oracle.Retries < 0 {
		errs = append(errs, fmt.Errorf("oracle.retries must be >= 0, got %d", c.Oracle.Retries))
	}

	// runtime.environment must be a known variant.
	switch c.Runtime.Environment {
	case "local", "sandbox":
		// valid
	default:
		errs = append(errs, fmt.Errorf("runtime.environment must be \"local\" or \"sandbox\", got %q", c.Runtime.Environment))
	}

	// Sandbox settings only matter for the sandbox variant.
	if c.Runtime.Environment == "sandbox" {
		switch c.Sandbox.Acquirer {
		case "static":
			if c.Sandbox.URL == "" {
				errs = append(errs, fmt.Errorf("sandbox.url is required when sandbox.acquirer is \"static\""))
			}
		case "kubernetes":
			if c.Sandbox.Template == "" {
				errs = append(errs, fmt.Errorf("sandbox.template is required when sandbox.acquirer is \"kubernetes\""))
			}
		default:
			errs = append(errs, fmt.Errorf("sandbox.acquirer must be \"static\" or \"kubernetes\", got %q", c.Sandbox.Acquirer))
		}
	}

	// search.backend must be a known value, with its credentials present.
	switch c.Search.Backend {
	case "none":
	case "tavily":
		if c.Search.APIKey == "" && c.Search.APIKeyFile == "" {
			errs = append(errs, fmt.Errorf("search.api_key or search.api_key_file is required when search.backend is \"tavily\""))
		}
	case "searxng":
		if c.Search.BaseURL == "" {
			errs = append(errs, fmt.Errorf("search.base_url is required when search.backend is \"searxng\""))
		}
	default:
		errs = append(errs, fmt.Errorf("search.backend must be \"tavily\", \"searxng\", or \"none\", got %q", c.Search.Backend))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value, with its material present.
	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" && c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret, auth.jwt.secret_file, or auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	return errors.Join(errs...)
}
