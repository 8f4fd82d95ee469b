package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripmind_go_backend/internal/providers"

	"github.com/rs/zerolog"
)

type TaskType string

const (
	TaskGeneral      TaskType = "general"
	TaskReasoning    TaskType = "reasoning"
	TaskLargeContext TaskType = "large_context"
	TaskMultimodal   TaskType = "multimodal"
	TaskSummarize    TaskType = "summarize"
	TaskChat         TaskType = "chat"
)

const ComplexityHigh = "high"

type ModelRoute struct {
	Provider string
	Model    string
}

func (r ModelRoute) String() string {
	return r.Provider + "/" + r.Model
}

// DefaultTaskRoutes is the static task to model table used by Route.
var DefaultTaskRoutes = map[TaskType]ModelRoute{
	TaskGeneral:      {Provider: providers.OpenAIName, Model: "gpt-4o-mini"},
	TaskReasoning:    {Provider: providers.OpenAIName, Model: "gpt-4o"},
	TaskLargeContext: {Provider: providers.GeminiName, Model: "gemini-1.5-pro"},
	TaskMultimodal:   {Provider: providers.GeminiName, Model: "gemini-1.5-flash"},
	TaskSummarize:    {Provider: providers.GeminiName, Model: "gemini-1.5-flash"},
}

type RouteRequest struct {
	TaskType       TaskType
	Prompt         string
	Context        map[string]interface{}
	PreferredModel string
	Complexity     string
}

type RouteResult struct {
	Result    string
	Model     string
	TaskType  TaskType
	Timestamp time.Time
	Usage     *providers.Usage
}

type GatewayConfig struct {
	// ChatRoute is the fixed provider/model for conversational turns.
	ChatRoute ModelRoute
	Routes    map[TaskType]ModelRoute
}

// GatewayService picks a provider per request, applies the rate limit and
// retries once on the default provider.
type GatewayService struct {
	registry *providers.Registry
	limiter  RateLimiter
	reporter ErrorReporter
	routes   map[TaskType]ModelRoute
	chat     ModelRoute
	logger   zerolog.Logger
	now      func() time.Time
}

func NewGatewayService(registry *providers.Registry, limiter RateLimiter, reporter ErrorReporter, cfg GatewayConfig, logger zerolog.Logger) *GatewayService {
	routes := cfg.Routes
	if routes == nil {
		routes = DefaultTaskRoutes
	}
	chat := cfg.ChatRoute
	if chat.Provider == "" {
		chat.Provider = registry.DefaultName()
	}
	return &GatewayService{
		registry: registry,
		limiter:  limiter,
		reporter: reporter,
		routes:   routes,
		chat:     chat,
		logger:   logger.With().Str("component", "gateway").Logger(),
		now:      time.Now,
	}
}

// Route answers a one-shot prompt for a task type. The rate limit is checked
// before any provider is contacted.
func (g *GatewayService) Route(ctx context.Context, clientKey string, req RouteRequest) (*RouteResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidIntent)
	}
	if err := g.checkRate(ctx, clientKey); err != nil {
		return nil, err
	}

	if req.TaskType == "" {
		req.TaskType = TaskGeneral
	}

	chatReq := providers.ChatRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: req.Prompt}},
	}
	if len(req.Context) > 0 {
		raw, err := json.Marshal(req.Context)
		if err == nil {
			chatReq.System = "Context:\n" + string(raw)
		}
	}

	var route ModelRoute
	if req.TaskType == TaskChat {
		route = g.chat
	} else {
		var err error
		route, err = g.selectRoute(req)
		if err != nil {
			return nil, err
		}
	}

	resp, used, err := g.invoke(ctx, route, chatReq, string(req.TaskType))
	if err != nil {
		return nil, err
	}
	return &RouteResult{
		Result:    resp.Text,
		Model:     used.String(),
		TaskType:  req.TaskType,
		Timestamp: g.now().UTC(),
		Usage:     resp.Usage,
	}, nil
}

// Chat runs a conversational turn on the fixed chat model. The caller is
// responsible for rate limiting.
func (g *GatewayService) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	resp, _, err := g.invoke(ctx, g.chat, req, string(TaskChat))
	return resp, err
}

// ChatProviderName names the provider that owns conversation threads.
func (g *GatewayService) ChatProviderName() string {
	return g.chat.Provider
}

// CheckRate is exposed for entry points that do not go through Route.
func (g *GatewayService) CheckRate(ctx context.Context, clientKey string) error {
	return g.checkRate(ctx, clientKey)
}

func (g *GatewayService) checkRate(ctx context.Context, clientKey string) error {
	if g.limiter == nil {
		return nil
	}
	allowed, err := g.limiter.Allow(ctx, clientKey)
	if err != nil {
		// The limiter store being down should not take the assistant with it.
		g.reporter.Capture(ctx, err, map[string]string{"stage": "rate_limit", "client": clientKey})
		return nil
	}
	if !allowed {
		g.logger.Warn().Str("client", clientKey).Msg("Rate limit exceeded")
		return ErrRateLimitExceeded
	}
	return nil
}

func (g *GatewayService) selectRoute(req RouteRequest) (ModelRoute, error) {
	if req.PreferredModel != "" {
		name, model := providers.ParseModelRef(req.PreferredModel, g.registry.DefaultName())
		if _, ok := g.registry.Get(name); !ok {
			return ModelRoute{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		return ModelRoute{Provider: name, Model: model}, nil
	}

	task := req.TaskType
	if task == TaskGeneral && strings.EqualFold(req.Complexity, ComplexityHigh) {
		task = TaskReasoning
	}
	route, ok := g.routes[task]
	if !ok {
		return ModelRoute{}, fmt.Errorf("%w: unsupported task type %q", ErrInvalidIntent, req.TaskType)
	}
	return route, nil
}

// invoke calls the routed provider. A failing non-default provider gets
// exactly one retry on the default provider with its own default model.
func (g *GatewayService) invoke(ctx context.Context, route ModelRoute, req providers.ChatRequest, task string) (*providers.ChatResponse, ModelRoute, error) {
	provider, ok := g.registry.Get(route.Provider)
	if !ok {
		g.logger.Warn().Str("provider", route.Provider).Msg("Routed provider not registered, using default")
		provider = g.registry.Default()
		route = ModelRoute{Provider: provider.Name()}
	}

	req.Model = route.Model
	resp, err := provider.Chat(ctx, req)
	if err == nil {
		return resp, resolvedRoute(route, resp), nil
	}

	g.reporter.Capture(ctx, err, map[string]string{"provider": route.Provider, "model": route.Model, "task": task})
	if route.Provider == g.registry.DefaultName() {
		return nil, route, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	fallback := g.registry.Default()
	fallbackRoute := ModelRoute{Provider: fallback.Name()}
	g.logger.Warn().
		Err(err).
		Str("from", route.String()).
		Str("to", fallbackRoute.Provider).
		Msg("Provider failed, falling back to default")

	req.Model = ""
	resp, err = fallback.Chat(ctx, req)
	if err != nil {
		g.reporter.Capture(ctx, err, map[string]string{"provider": fallbackRoute.Provider, "task": task, "fallback": "true"})
		return nil, fallbackRoute, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return resp, resolvedRoute(fallbackRoute, resp), nil
}

func resolvedRoute(route ModelRoute, resp *providers.ChatResponse) ModelRoute {
	if route.Model == "" && resp != nil {
		route.Model = resp.Model
	}
	return route
}
