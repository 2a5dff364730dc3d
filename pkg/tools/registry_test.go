package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Definition {
	return Definition{
		Name:        name,
		Description: "echoes its input",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			return args["text"], nil
		},
	}
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(echoTool("echo")))

	result, err := r.Execute(context.Background(), "echo", map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistryOverwritesOnCollision(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(echoTool("echo")))

	replacement := Definition{
		Name:        "echo",
		Description: "always returns a constant",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			return "replaced", nil
		},
	}
	require.NoError(t, r.Register(replacement))

	result, err := r.Execute(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "replaced", result)

	defs := r.Definitions("")
	require.Len(t, defs, 1)
	assert.Equal(t, "always returns a constant", defs[0].Description)
}

func TestRegistryRejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	handler := func(context.Context, map[string]interface{}) (interface{}, error) { return nil, nil }

	assert.Error(t, r.Register(Definition{Description: "no name", Handler: handler}))
	assert.Error(t, r.Register(Definition{Name: "x", Handler: handler}))
	assert.Error(t, r.Register(Definition{Name: "x", Description: "no handler"}))
	assert.Error(t, r.Register(Definition{
		Name: "x", Description: "bad type", Handler: handler,
		Parameters: []Parameter{{Name: "p", Type: "tuple"}},
	}))
}

func TestRegistryValidatesArguments(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(echoTool("echo")))

	_, err := r.Execute(context.Background(), "echo", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter validation failed")

	_, err = r.Execute(context.Background(), "echo", map[string]interface{}{"text": 42})
	assert.Error(t, err)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, err := r.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found")
}

func TestRegistryExecuteTimeout(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.SetDefaultTimeout(50 * time.Millisecond)

	require.NoError(t, r.Register(Definition{
		Name:        "slow",
		Description: "sleeps past the timeout",
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	start := time.Now()
	_, err := r.Execute(context.Background(), "slow", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistryDefinitionsFilterAndOrder(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	for _, name := range []string{"fs_read", "fs_write", "net_fetch"} {
		require.NoError(t, r.Register(echoTool(name)))
	}

	all := r.Definitions("")
	require.Len(t, all, 3)
	assert.Equal(t, "fs_read", all[0].Name)
	assert.Equal(t, "fs_write", all[1].Name)
	assert.Equal(t, "net_fetch", all[2].Name)

	fs := r.Definitions("fs_")
	require.Len(t, fs, 2)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(echoTool("echo")))

	r.Unregister("echo")
	assert.Nil(t, r.Get("echo"))

	_, err := r.Execute(context.Background(), "echo", nil)
	assert.Error(t, err)
}

func TestInputSchemaShape(t *testing.T) {
	def := Definition{
		Name:        "exec",
		Description: "runs a command",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "shell command", Required: true},
			{Name: "timeout", Type: "integer", Description: "seconds", Default: 30},
		},
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) { return nil, nil },
	}

	schema := def.InputSchema()
	assert.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]interface{})
	require.Contains(t, props, "command")
	require.Contains(t, props, "timeout")
	assert.Equal(t, 30, props["timeout"].(map[string]interface{})["default"])
	assert.Equal(t, []string{"command"}, schema["required"])
}

func TestRegistryConcurrentExecute(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(echoTool("echo")))

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(i int) {
			_, err := r.Execute(context.Background(), "echo",
				map[string]interface{}{"text": fmt.Sprintf("m%d", i)})
			done <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-done)
	}
}
