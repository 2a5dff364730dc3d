package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Subprocess endpoints spawn the configured command once per call, write a
// single framed JSON-RPC request to stdin, read one framed response from
// stdout, and reap the process. No pooling; spawns share no state.

func (r *Router) callSubprocess(ctx context.Context, ep Endpoint, name string, args map[string]interface{}) ToolResult {
	payload, err := encodeCall("tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return Failure("failed to encode call for %s: %v", ep.Name, err)
	}

	resp, err := r.roundTripSubprocess(ctx, ep, payload)
	if err != nil {
		return Failure("endpoint %s: %v", ep.Name, err)
	}
	if resp.Error != nil {
		return Failure("endpoint %s rpc error %d: %s", ep.Name, resp.Error.Code, resp.Error.Message)
	}

	var value interface{}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &value); err != nil {
			return Failure("malformed result from %s: %v", ep.Name, err)
		}
	}
	return ToolResult{Success: true, Value: value}
}

func (r *Router) listSubprocess(ctx context.Context, ep Endpoint) ([]ToolInfo, error) {
	payload, err := encodeCall("tools/list", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.roundTripSubprocess(ctx, ep, payload)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", ep.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("endpoint %s rpc error %d: %s", ep.Name, resp.Error.Code, resp.Error.Message)
	}

	var listing struct {
		Tools []struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			InputSchema map[string]interface{} `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &listing); err != nil {
		return nil, fmt.Errorf("malformed tool listing from %s: %w", ep.Name, err)
	}

	infos := make([]ToolInfo, 0, len(listing.Tools))
	for _, t := range listing.Tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return infos, nil
}

// roundTripSubprocess performs the one-shot spawn/write/read/reap cycle
// under the router's call timeout.
func (r *Router) roundTripSubprocess(ctx context.Context, ep Endpoint, payload []byte) (*rpcResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, ep.Command, ep.Args...)

	var stdin bytes.Buffer
	if err := writeFrame(&stdin, payload); err != nil {
		return nil, fmt.Errorf("failed to frame request: %w", err)
	}
	cmd.Stdin = &stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", ep.Command, err)
	}

	frame, readErr := readFrame(bufio.NewReader(stdout))

	// Always reap, even when the read failed, so the process never leaks.
	waitErr := cmd.Wait()

	if callCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("call timed out after %v", r.callTimeout)
	}
	if readErr != nil {
		if waitErr != nil {
			return nil, fmt.Errorf("%v (process: %v)", readErr, waitErr)
		}
		return nil, readErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("process exited abnormally: %w", waitErr)
	}

	return decodeResponse(frame)
}

// healthSubprocess treats the endpoint as healthy when its command path is
// resolvable. No process is spawned for a health probe, to avoid side
// effects.
func healthSubprocess(ep Endpoint) bool {
	_, err := exec.LookPath(ep.Command)
	return err == nil
}
