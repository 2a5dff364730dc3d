package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTP tool service wire contract:
//   GET  {base}/tools  -> {"tools":[{"name","description"}]}
//   GET  {base}/health -> {"status":"ok"}
//   POST {base}/call   -> {"result":...} or {"error":"..."}

type httpCallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type httpCallResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type httpToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

type httpHealthResponse struct {
	Status string `json:"status"`
}

func (r *Router) callHTTP(ctx context.Context, ep Endpoint, name string, args map[string]interface{}) ToolResult {
	body, err := json.Marshal(httpCallRequest{Name: name, Arguments: args})
	if err != nil {
		return Failure("failed to encode call for %s: %v", ep.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(ep.Address, "/")+"/call", bytes.NewReader(body))
	if err != nil {
		return Failure("failed to build request for %s: %v", ep.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Failure("endpoint %s unreachable: %v", ep.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return Failure("failed to read response from %s: %v", ep.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure("endpoint %s returned status %d: %s", ep.Name, resp.StatusCode, truncate(string(data), 256))
	}

	var call httpCallResponse
	if err := json.Unmarshal(data, &call); err != nil {
		return Failure("malformed response from %s: %v", ep.Name, err)
	}
	if call.Error != "" {
		return ToolResult{Success: false, ErrorMessage: call.Error}
	}

	var value interface{}
	if len(call.Result) > 0 {
		if err := json.Unmarshal(call.Result, &value); err != nil {
			return Failure("malformed result from %s: %v", ep.Name, err)
		}
	}
	return ToolResult{Success: true, Value: value}
}

func (r *Router) listHTTP(ctx context.Context, ep Endpoint) ([]ToolInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(ep.Address, "/")+"/tools", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s unreachable: %w", ep.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint %s returned status %d", ep.Name, resp.StatusCode)
	}

	var listing httpToolsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFrameSize)).Decode(&listing); err != nil {
		return nil, fmt.Errorf("malformed tool listing from %s: %w", ep.Name, err)
	}
	return listing.Tools, nil
}

func (r *Router) healthHTTP(ctx context.Context, ep Endpoint) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(ep.Address, "/")+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health httpHealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
