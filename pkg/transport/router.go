package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/internal/observability"
	"github.com/escape-velocity-ventures/orbit/pkg/tools"
)

// Router owns zero-or-more endpoints and dispatches tool calls to the one
// claiming the tool's name prefix.
type Router struct {
	mu        sync.RWMutex
	endpoints []Endpoint

	registry    *tools.Registry
	client      *http.Client
	callTimeout time.Duration
	logger      zerolog.Logger
}

// RouterConfig holds router construction parameters.
type RouterConfig struct {
	Registry    *tools.Registry
	Endpoints   []Endpoint
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// NewRouter creates a router. The inline registry is required because an
// inline endpoint delegates straight to it.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	observability.EnsureRegistered()

	r := &Router{
		registry:    cfg.Registry,
		client:      &http.Client{Timeout: cfg.CallTimeout},
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}
	if err := r.SetEndpoints(cfg.Endpoints); err != nil {
		return nil, err
	}
	return r, nil
}

// SetEndpoints validates and atomically swaps the endpoint set. Order is
// preserved; resolution is first match. Overlapping enabled prefixes are a
// configuration hazard and are logged, not rejected.
func (r *Router) SetEndpoints(endpoints []Endpoint) error {
	for _, ep := range endpoints {
		if err := ep.Validate(); err != nil {
			return err
		}
	}

	for i, a := range endpoints {
		if !a.Enabled {
			continue
		}
		for _, b := range endpoints[i+1:] {
			if !b.Enabled {
				continue
			}
			if strings.HasPrefix(a.ToolPrefix, b.ToolPrefix) || strings.HasPrefix(b.ToolPrefix, a.ToolPrefix) {
				r.logger.Warn().
					Str("endpoint_a", a.Name).
					Str("endpoint_b", b.Name).
					Msg("Endpoint tool prefixes overlap, first match wins")
			}
		}
	}

	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)

	r.mu.Lock()
	r.endpoints = cp
	r.mu.Unlock()

	r.logger.Info().Int("endpoints", len(cp)).Msg("Transport endpoints configured")
	return nil
}

// Endpoints returns a copy of the configured endpoint set.
func (r *Router) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := make([]Endpoint, len(r.endpoints))
	copy(cp, r.endpoints)
	return cp
}

// EndpointFor resolves the first enabled endpoint whose ToolPrefix is a
// prefix of name.
func (r *Router) EndpointFor(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ep := range r.endpoints {
		if ep.Enabled && strings.HasPrefix(name, ep.ToolPrefix) {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// ListAllTools aggregates tool listings from every enabled endpoint. A
// failing endpoint is logged and skipped; partial results are expected.
func (r *Router) ListAllTools(ctx context.Context) []ToolInfo {
	var infos []ToolInfo
	for _, ep := range r.Endpoints() {
		if !ep.Enabled {
			continue
		}

		listing, err := r.listEndpoint(ctx, ep)
		if err != nil {
			r.logger.Warn().Str("endpoint", ep.Name).Err(err).Msg("Tool listing failed, skipping endpoint")
			continue
		}
		infos = append(infos, listing...)
	}
	return infos
}

func (r *Router) listEndpoint(ctx context.Context, ep Endpoint) ([]ToolInfo, error) {
	switch ep.Kind {
	case KindInline:
		defs := r.registry.Definitions("")
		infos := make([]ToolInfo, 0, len(defs))
		for _, def := range defs {
			infos = append(infos, ToolInfo{
				Name:        def.Name,
				Description: def.Description,
				InputSchema: def.InputSchema(),
			})
		}
		return infos, nil
	case KindHTTP:
		return r.listHTTP(ctx, ep)
	case KindSubprocess:
		return r.listSubprocess(ctx, ep)
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", ep.Kind)
	}
}

// CallTool resolves the owning endpoint and dispatches. Every failure mode,
// including an unclaimed tool name, comes back as a ToolResult so the
// orchestration loop can feed it to the model uniformly.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	ep, ok := r.EndpointFor(name)
	if !ok {
		r.logger.Warn().Str("tool", name).Msg("No endpoint claims tool")
		return Failure("tool not found: no enabled endpoint claims %q", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	start := time.Now()
	var result ToolResult
	switch ep.Kind {
	case KindInline:
		result = r.callInline(ctx, name, args)
	case KindHTTP:
		result = r.callHTTP(ctx, ep, name, args)
	case KindSubprocess:
		result = r.callSubprocess(ctx, ep, name, args)
	default:
		result = Failure("unknown endpoint kind %q", ep.Kind)
	}

	observability.RecordToolDispatch(string(ep.Kind), time.Since(start), result.Success)
	r.logger.Debug().
		Str("tool", name).
		Str("endpoint", ep.Name).
		Bool("success", result.Success).
		Dur("duration", time.Since(start)).
		Msg("Tool dispatched")
	return result
}

func (r *Router) callInline(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	value, err := r.registry.Execute(ctx, name, args)
	if err != nil {
		return ToolResult{Success: false, ErrorMessage: err.Error()}
	}
	return ToolResult{Success: true, Value: value}
}

// HealthCheck probes every endpoint. HTTP endpoints answer a liveness
// call; subprocess endpoints are healthy when their command resolves;
// inline endpoints are always healthy.
func (r *Router) HealthCheck(ctx context.Context) map[string]bool {
	health := make(map[string]bool)
	for _, ep := range r.Endpoints() {
		if !ep.Enabled {
			health[ep.Name] = false
			continue
		}
		switch ep.Kind {
		case KindInline:
			health[ep.Name] = true
		case KindHTTP:
			health[ep.Name] = r.healthHTTP(ctx, ep)
		case KindSubprocess:
			health[ep.Name] = healthSubprocess(ep)
		default:
			health[ep.Name] = false
		}
	}
	return health
}
