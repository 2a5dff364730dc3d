package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/internal/config"
	"github.com/escape-velocity-ventures/orbit/internal/logger"
	"github.com/escape-velocity-ventures/orbit/pkg/provider"
	"github.com/escape-velocity-ventures/orbit/pkg/runtime"
	"github.com/escape-velocity-ventures/orbit/pkg/session"
	"github.com/escape-velocity-ventures/orbit/pkg/tools"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

// app wires the configured components together. Commands build one, use
// what they need, and Close it.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   session.Store
	manager *session.Manager
	sweeper *session.Sweeper
	router  *transport.Router
	watcher *transport.Watcher
	runtime *runtime.Runtime
}

func newApp() (*app, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zl := log.Zerolog()

	a := &app{cfg: cfg, log: log}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}

	zl.Info().
		Str("provider", cfg.Provider.Kind).
		Str("store", cfg.Store.Backend).
		Msg("Runtime assembled")
	return a, nil
}

func (a *app) build() error {
	zl := a.log.Zerolog()

	switch a.cfg.Store.Backend {
	case "sqlite":
		ttl := time.Duration(a.cfg.Store.TTLDays) * 24 * time.Hour
		store, err := session.NewSQLiteStore(a.cfg.Store.Path, ttl, zl)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		a.store = store

		schedule := a.cfg.Store.SweepSchedule
		if schedule == "" {
			schedule = "@hourly"
		}
		sweeper, err := session.NewSweeper(store, schedule, zl)
		if err != nil {
			return fmt.Errorf("failed to create session sweeper: %w", err)
		}
		a.sweeper = sweeper
	default:
		a.store = session.NewMemoryStore()
	}

	manager, err := session.NewManager(a.store, zl)
	if err != nil {
		return err
	}
	a.manager = manager

	registry := tools.NewRegistry(zl)
	if a.cfg.Runtime.ToolTimeoutSecs > 0 {
		registry.SetDefaultTimeout(time.Duration(a.cfg.Runtime.ToolTimeoutSecs) * time.Second)
	}
	if err := tools.RegisterBuiltins(registry, tools.BuiltinOptions{
		WorkspaceRoot: a.cfg.WorkspaceRoot,
	}); err != nil {
		return err
	}

	endpoints := a.cfg.Endpoints
	if a.cfg.EndpointsFile != "" {
		endpoints, err = transport.LoadEndpointsFile(a.cfg.EndpointsFile)
		if err != nil {
			return err
		}
	}
	router, err := transport.NewRouter(transport.RouterConfig{
		Registry:    registry,
		Endpoints:   endpoints,
		CallTimeout: time.Duration(a.cfg.Runtime.ToolTimeoutSecs) * time.Second,
		Logger:      zl,
	})
	if err != nil {
		return err
	}
	a.router = router

	if a.cfg.EndpointsFile != "" {
		watcher, err := transport.NewWatcher(router, a.cfg.EndpointsFile, zl)
		if err != nil {
			return err
		}
		a.watcher = watcher
	}

	prov, err := buildProvider(a.cfg.Provider, zl)
	if err != nil {
		return err
	}

	rt, err := runtime.New(runtime.Config{
		Sessions:         manager,
		Router:           router,
		Provider:         prov,
		Logger:           zl,
		Model:            a.cfg.Provider.Model,
		SystemPrompt:     a.cfg.Runtime.SystemPrompt,
		MaxTurns:         a.cfg.Runtime.MaxTurns,
		MaxContextTokens: a.cfg.Runtime.MaxContextTokens,
	})
	if err != nil {
		return err
	}
	a.runtime = rt
	return nil
}

func buildProvider(cfg config.ProviderConfig, zl zerolog.Logger) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", cfg.Kind)
	}
	switch cfg.Kind {
	case "openai":
		return provider.NewOpenAIProvider(cfg.APIKey, cfg.EffortModels, zl), nil
	case "anthropic":
		return provider.NewAnthropicProvider(cfg.APIKey, cfg.EffortModels, zl), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// Close releases components in reverse assembly order.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.manager != nil {
		_ = a.manager.Close()
	} else if a.store != nil {
		_ = a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}
