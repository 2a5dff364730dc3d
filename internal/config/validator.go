package config

import "fmt"

// Validate checks the configuration for values the daemon cannot run with.
func Validate(cfg *Config) error {
	switch cfg.Provider.Kind {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("provider.kind must be openai or anthropic, got %q", cfg.Provider.Kind)
	}
	if cfg.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
		if cfg.Store.TTLDays < 0 {
			return fmt.Errorf("store.ttl_days must not be negative")
		}
	default:
		return fmt.Errorf("store.backend must be memory or sqlite, got %q", cfg.Store.Backend)
	}

	if cfg.Runtime.MaxTurns <= 0 {
		return fmt.Errorf("runtime.max_turns must be positive")
	}
	if cfg.Runtime.MaxContextTokens < 0 {
		return fmt.Errorf("runtime.max_context_tokens must not be negative")
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
			return fmt.Errorf("gateway.port must be in 1..65535, got %d", cfg.Gateway.Port)
		}
	}

	for _, ep := range cfg.Endpoints {
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
	}
	return nil
}
