// Command reagent runs the code agent HTTP service: a Reason-Act-Observe
// loop over an OpenAI-compatible reasoning backend, with code execution in
// a local interpreter or a remote sandbox.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, REAGENT_CONFIG, ./config.yaml, or /etc/reagent/config.yaml),
// then REAGENT_* environment overrides. REAGENT_ORACLE_URL is required.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/reagent-dev/reagent/pkg/agent"
	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/auth"
	"github.com/reagent-dev/reagent/pkg/auth/apikey"
	"github.com/reagent-dev/reagent/pkg/auth/jwt"
	"github.com/reagent-dev/reagent/pkg/auth/noop"
	"github.com/reagent-dev/reagent/pkg/config"
	"github.com/reagent-dev/reagent/pkg/oracle/openai"
	"github.com/reagent-dev/reagent/pkg/runtime"
	"github.com/reagent-dev/reagent/pkg/runtime/local"
	"github.com/reagent-dev/reagent/pkg/runtime/sandbox"
	"github.com/reagent-dev/reagent/pkg/runtime/sandbox/kubernetes"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/storage"
	"github.com/reagent-dev/reagent/pkg/storage/memory"
	"github.com/reagent-dev/reagent/pkg/storage/postgres"
	"github.com/reagent-dev/reagent/pkg/tools"
	"github.com/reagent-dev/reagent/pkg/transport"
	transporthttp "github.com/reagent-dev/reagent/pkg/transport/http"
	"github.com/reagent-dev/reagent/pkg/websearch"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	setupLogging()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.Default()
	ctx := context.Background()

	// Reasoning oracle.
	oracleClient := openai.NewClient(cfg.Oracle.BackendURL, cfg.Oracle.APIKey, 120*time.Second)
	defer oracleClient.Close()

	// Web search collaborator.
	var search websearch.Adapter
	switch cfg.Search.Backend {
	case "tavily":
		search = websearch.NewTavily(cfg.Search.APIKey)
	case "searxng":
		search = websearch.NewSearXNG(cfg.Search.BaseURL)
	case "none", "":
		// web_search dispatches to an error result.
	}

	// Run store.
	var store storage.RunStore
	switch cfg.Storage.Type {
	case "postgres":
		store, err = postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
	default:
		store = memory.New(cfg.Storage.MaxSize)
	}
	defer store.Close()
	logger.Info("run store ready", "type", cfg.Storage.Type)

	// Sandbox acquirer, if the sandbox variant can be requested.
	acquirer, err := buildAcquirer(cfg)
	if err != nil {
		return err
	}

	// Session manager with the environment factory.
	manager := session.NewManager(environmentFactory(cfg, acquirer), logger)

	dispatcher := tools.NewDispatcher(search, logger)
	controller := agent.NewController(oracleClient, dispatcher, agent.Config{
		Model:         cfg.Oracle.Model,
		Temperature:   cfg.Oracle.Temperature,
		MaxIterations: cfg.Oracle.MaxIterations,
		OracleRetries: cfg.Oracle.Retries,
	}, logger)

	registry := artifacts.NewRegistry()
	service := agent.NewService(controller, manager, store, registry, logger)

	// HTTP surface.
	adapter := transporthttp.NewAdapter(service, store, manager, registry,
		transporthttp.Config{MetricsPath: cfg.Observability.Metrics.Path},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(logger),
	)

	authMW, err := buildAuthMiddleware(cfg)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(authMW(adapter.Handler()), transporthttp.ServerConfig{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
	})

	// Sessions hold live interpreters and remote sandboxes; closing them
	// on shutdown guarantees teardown.
	srv.OnShutdown(func(ctx context.Context) {
		manager.CloseAll(ctx)
	})

	logger.Info("reagent starting",
		"port", cfg.Server.Port,
		"oracle", cfg.Oracle.BackendURL,
		"model", cfg.Oracle.Model,
		"environment", cfg.Runtime.Environment,
		"search", cfg.Search.Backend,
	)
	return srv.ListenAndServe()
}

// environmentFactory builds per-session environments. kind overrides the
// configured default for new sessions.
func environmentFactory(cfg *config.Config, acquirer sandbox.Acquirer) session.EnvironmentFactory {
	return func(sessionID, kind string) (runtime.Environment, *artifacts.Sink, error) {
		if kind == "" {
			kind = cfg.Runtime.Environment
		}

		sink, err := artifacts.NewSink(cfg.Runtime.ArtifactsDir, sessionID)
		if err != nil {
			return nil, nil, api.NewServerError("creating artifact sink: " + err.Error())
		}

		switch kind {
		case "local":
			env, err := local.New(local.Config{
				Python:      cfg.Runtime.Python,
				ExecTimeout: cfg.Runtime.ExecTimeout,
				OutputLimit: cfg.Runtime.OutputLimit,
			}, sink, cfg.Runtime.WorkDir, sessionID)
			if err != nil {
				return nil, nil, err
			}
			return env, sink, nil

		case "sandbox":
			if acquirer == nil {
				return nil, nil, api.NewConfigurationError("sandbox", "sandbox environment is not configured")
			}
			env := sandbox.New(sandbox.Config{
				ExecTimeout:    cfg.Runtime.ExecTimeout,
				InstallTimeout: cfg.Sandbox.InstallTimeout,
				OutputLimit:    cfg.Runtime.OutputLimit,
			}, acquirer, sink)
			return env, sink, nil

		default:
			return nil, nil, api.NewInvalidRequestError("environment", "unknown environment: "+kind)
		}
	}
}

// buildAcquirer constructs the sandbox acquirer named in config, or nil
// when no sandbox backend is configured.
func buildAcquirer(cfg *config.Config) (sandbox.Acquirer, error) {
	switch cfg.Sandbox.Acquirer {
	case "static":
		if cfg.Sandbox.URL == "" {
			return nil, nil
		}
		return &sandbox.StaticAcquirer{URL: cfg.Sandbox.URL}, nil

	case "kubernetes":
		restCfg, err := ctrl.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, err
		}
		k8sClient, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating kubernetes client: %w", err)
		}
		return kubernetes.NewClaimAcquirer(k8sClient, cfg.Sandbox.Template, cfg.Sandbox.Namespace, cfg.Sandbox.ReadyTimeout), nil

	default:
		return nil, nil
	}
}

// buildAuthMiddleware assembles the auth chain from config. API-key
// subjects double as tenant IDs so stored runs are scoped per caller.
func buildAuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	var limiter auth.RateLimiter
	if rpm := cfg.Auth.RateLimit.RequestsPerMinute; rpm > 0 {
		limiter = auth.NewInProcessLimiter(nil, rpm)
	}

	switch cfg.Auth.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: "default",
					Metadata:    map[string]string{"tenant_id": k.Subject},
				},
			})
		}
		chain := &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}
		return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil

	case "jwt":
		authn := jwt.New(jwt.Config{
			Secret:   cfg.Auth.JWT.Secret,
			JWKSURL:  cfg.Auth.JWT.JWKSURL,
			Issuer:   cfg.Auth.JWT.Issuer,
			Audience: cfg.Auth.JWT.Audience,
		})
		chain := &auth.Chain{
			Authenticators:  []auth.Authenticator{authn},
			DefaultDecision: auth.No,
		}
		return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil

	default: // "none"
		chain := &auth.Chain{
			Authenticators: []auth.Authenticator{&noop.Authenticator{}},
		}
		return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("REAGENT_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
