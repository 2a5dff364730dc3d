// Package config defines the daemon configuration and its loader.
package config

import (
	"github.com/escape-velocity-ventures/orbit/internal/logger"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

// Config is the root configuration
type Config struct {
	Provider  ProviderConfig       `json:"provider" mapstructure:"provider"`
	Store     StoreConfig          `json:"store" mapstructure:"store"`
	Runtime   RuntimeConfig        `json:"runtime" mapstructure:"runtime"`
	Gateway   GatewayConfig        `json:"gateway" mapstructure:"gateway"`
	Endpoints []transport.Endpoint `json:"endpoints" mapstructure:"endpoints"`
	// EndpointsFile, when set, overrides Endpoints and is watched for
	// changes at runtime.
	EndpointsFile string         `json:"endpoints_file,omitempty" mapstructure:"endpoints_file"`
	Logging       logger.Config  `json:"logging" mapstructure:"logging"`
	WorkspaceRoot string         `json:"workspace_root,omitempty" mapstructure:"workspace_root"`
	DataDir       string         `json:"data_dir,omitempty" mapstructure:"data_dir"`
}

// ProviderConfig selects and configures the model backend
type ProviderConfig struct {
	Kind   string `json:"kind" mapstructure:"kind"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
	// EffortModels maps effort levels (low, medium, high) to model names.
	EffortModels map[string]string `json:"effort_models,omitempty" mapstructure:"effort_models"`
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"`
	Path    string `json:"path,omitempty" mapstructure:"path"`
	TTLDays int    `json:"ttl_days,omitempty" mapstructure:"ttl_days"`
	// SweepSchedule is a cron expression for the expired-session sweeper.
	SweepSchedule string `json:"sweep_schedule,omitempty" mapstructure:"sweep_schedule"`
}

// RuntimeConfig tunes the orchestration loop
type RuntimeConfig struct {
	MaxTurns         int    `json:"max_turns" mapstructure:"max_turns"`
	MaxContextTokens int    `json:"max_context_tokens" mapstructure:"max_context_tokens"`
	SystemPrompt     string `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	ToolTimeoutSecs  int    `json:"tool_timeout_secs,omitempty" mapstructure:"tool_timeout_secs"`
}

// GatewayConfig configures the HTTP/WebSocket gateway
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret,omitempty" mapstructure:"shared_secret"`
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:  "anthropic",
			Model: "claude-sonnet-4-20250514",
		},
		Store: StoreConfig{
			Backend:       "memory",
			TTLDays:       7,
			SweepSchedule: "@hourly",
		},
		Runtime: RuntimeConfig{
			MaxTurns:         10,
			MaxContextTokens: 64000,
			ToolTimeoutSecs:  60,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8732,
		},
		Endpoints: []transport.Endpoint{
			{Name: "builtin", Kind: transport.KindInline, ToolPrefix: "", Enabled: true},
		},
		Logging: logger.DefaultConfig(),
	}
}
