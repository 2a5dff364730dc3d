package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// BuiltinOptions configures built-in tool registration. All file paths are
// resolved relative to WorkspaceRoot and must stay inside it.
type BuiltinOptions struct {
	WorkspaceRoot string
}

// RegisterBuiltins registers the baseline command and filesystem tools.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) error {
	if r == nil {
		return errors.New("tool registry is required")
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = "."
	}

	defs := []Definition{
		execTool(opts),
		readFileTool(opts),
		writeFileTool(opts),
		listDirTool(opts),
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func execTool(opts BuiltinOptions) Definition {
	return Definition{
		Name:        "exec",
		Description: "Execute a shell command inside the workspace and capture its output.",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "Command to execute", Required: true},
			{Name: "cwd", Type: "string", Description: "Working directory relative to the workspace", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			command, _ := args["command"].(string)
			command = strings.TrimSpace(command)
			if command == "" {
				return nil, fmt.Errorf("command is required")
			}

			cwd, err := resolvePath(opts.WorkspaceRoot, stringArg(args, "cwd"))
			if err != nil {
				return nil, err
			}

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Dir = cwd

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()
			exitCode := 0
			if runErr != nil {
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					exitCode = exitErr.ExitCode()
				} else {
					return nil, runErr
				}
			}

			return map[string]interface{}{
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
				"exit_code": exitCode,
			}, nil
		},
	}
}

func readFileTool(opts BuiltinOptions) Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a file from the workspace.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the workspace", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			path, err := resolvePath(opts.WorkspaceRoot, stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"path":    stringArg(args, "path"),
				"content": string(data),
			}, nil
		},
	}
}

func writeFileTool(opts BuiltinOptions) Definition {
	return Definition{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating parent directories as needed.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the workspace", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			path, err := resolvePath(opts.WorkspaceRoot, stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			content, _ := args["content"].(string)

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"path":  stringArg(args, "path"),
				"bytes": len(content),
			}, nil
		},
	}
}

func listDirTool(opts BuiltinOptions) Definition {
	return Definition{
		Name:        "list_dir",
		Description: "List the entries of a workspace directory.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path relative to the workspace", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			path, err := resolvePath(opts.WorkspaceRoot, stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}

			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return map[string]interface{}{
				"path":    stringArg(args, "path"),
				"entries": names,
			}, nil
		},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// resolvePath joins rel onto root and rejects escapes outside the
// workspace.
func resolvePath(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Clean(filepath.Join(absRoot, rel))
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return joined, nil
}
