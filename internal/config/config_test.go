package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Runtime.MaxTurns)
}

func TestValidateRejections(t *testing.T) {
	mutate := func(fn func(*Config)) *Config {
		cfg := DefaultConfig()
		fn(cfg)
		return cfg
	}

	cases := map[string]*Config{
		"unknown provider":    mutate(func(c *Config) { c.Provider.Kind = "oracle" }),
		"missing model":       mutate(func(c *Config) { c.Provider.Model = "" }),
		"unknown store":       mutate(func(c *Config) { c.Store.Backend = "etcd" }),
		"sqlite without path": mutate(func(c *Config) { c.Store.Backend = "sqlite" }),
		"zero max turns":      mutate(func(c *Config) { c.Runtime.MaxTurns = 0 }),
		"negative budget":     mutate(func(c *Config) { c.Runtime.MaxContextTokens = -1 }),
		"bad gateway port":    mutate(func(c *Config) { c.Gateway.Port = 70000 }),
		"invalid endpoint": mutate(func(c *Config) {
			c.Endpoints = append(c.Endpoints, c.Endpoints[0])
			c.Endpoints[1].Name = ""
		}),
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoaderReadsFileAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orbit.json")
	raw := `{
  "provider": {"kind": "openai", "api_key": "sk-test", "model": "gpt-4o"},
  "store": {"backend": "sqlite"},
  "data_dir": "` + dir + `",
  "workspace_root": "` + dir + `"
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Kind)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, filepath.Join(dir, "sessions.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "orbit.log"), cfg.Logging.File)
	// Unspecified sections keep their defaults.
	assert.Equal(t, 10, cfg.Runtime.MaxTurns)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": {"kind": "oracle"}}`), 0o644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}
