package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// ErrUnknownEngine is reported when a forced or routed engine is not registered.
var ErrUnknownEngine = errors.New("unknown engine")

// GatewayConfig toggles the gateway features.
type GatewayConfig struct {
	Enabled      bool
	CacheEnabled bool
	Retry        RetryPolicy
}

// Gateway is the single entry point for AI enrichment.
type Gateway struct {
	cfg     GatewayConfig
	router  *Router
	engines map[string]Engine
	local   string
	cache   Cache
	now     func() time.Time

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics GatewayMetrics
}

// GatewayOption configures optional Gateway collaborators.
type GatewayOption func(*Gateway)

// WithCache enables result caching when the config allows it.
func WithCache(c Cache) GatewayOption { return func(g *Gateway) { g.cache = c } }

// WithGatewayClock overrides the time source.
func WithGatewayClock(now func() time.Time) GatewayOption { return func(g *Gateway) { g.now = now } }

// NewGateway creates a Gateway over engines. localEngine names the engine
// used for fallback and must be one of engines.
func NewGateway(
	cfg GatewayConfig,
	router *Router,
	engines []Engine,
	localEngine string,
	metrics GatewayMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...GatewayOption,
) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		router:  router,
		engines: make(map[string]Engine, len(engines)),
		local:   localEngine,
		now:     time.Now,
		logger:  log.With("component", "ai_gateway"),
		tracer:  tracer,
		metrics: metrics,
	}
	for _, e := range engines {
		g.engines[e.Name()] = e
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Analyze enriches pack. It never returns an error: every failure is
// expressed through the returned report's status.
func (g *Gateway) Analyze(
	ctx context.Context,
	pack analysis.EvidencePack,
	mode analysis.Mode,
	forceEngine string,
) analysis.EnrichedReport {
	start := g.now()
	if !g.cfg.Enabled {
		return analysis.EnrichedReport{Status: analysis.StatusSkipped, GeneratedAt: start}
	}

	ctx, span := g.tracer.Start(ctx, "ai_gateway.analyze",
		trace.WithAttributes(
			attribute.String("scan_id", pack.ScanID),
			attribute.String("mode", string(mode)),
		))
	defer span.End()
	log := logger.NewLoggerContext(g.logger.With("scan_id", pack.ScanID))

	finish := func(rep analysis.EnrichedReport) analysis.EnrichedReport {
		rep.DurationMS = g.now().Sub(start).Milliseconds()
		rep.GeneratedAt = g.now()
		span.SetAttributes(
			attribute.String("ai_status", string(rep.Status)),
			attribute.String("engine", rep.EngineUsed),
			attribute.Bool("cached", rep.Cached),
			attribute.Bool("fallback", rep.FallbackUsed),
		)
		return rep
	}
	failed := func(route Route, err error) analysis.EnrichedReport {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ai analysis failed")
		log.Warn(ctx, "ai analysis failed", "engine", route.Engine, "error", err)
		return finish(analysis.EnrichedReport{
			Status:          analysis.StatusFailed,
			EngineUsed:      route.Engine,
			RoutingReason:   route.Reason,
			ComplexityScore: route.ComplexityScore,
			Error:           err.Error(),
		})
	}

	route := g.router.Select(pack, mode)
	if forceEngine != "" {
		route.Engine, route.Reason = forceEngine, ReasonForced
	}
	log.Add("engine", route.Engine)
	span.SetAttributes(attribute.String("routing_reason", route.Reason))

	engine, ok := g.engines[route.Engine]
	if !ok {
		return failed(route, fmt.Errorf("%w: %q", ErrUnknownEngine, route.Engine))
	}

	hash, err := pack.Hash()
	if err != nil {
		return failed(route, err)
	}

	useCache := g.cfg.CacheEnabled && g.cache != nil
	if useCache {
		if cached, hit := g.cache.Get(ctx, pack.Commit, hash, route.Engine); hit {
			g.metrics.IncCacheHit(ctx, route.Engine)
			span.AddEvent("cache_hit")
			log.Debug(ctx, "serving cached enrichment")
			cached.Cached = true
			return finish(cached)
		}
		g.metrics.IncCacheMiss(ctx, route.Engine)
	}

	rep := analysis.EnrichedReport{
		RoutingReason:   route.Reason,
		ComplexityScore: route.ComplexityScore,
	}

	narrative, err := g.invoke(ctx, engine, pack, mode)
	used := engine.Name()
	if err != nil && engine.Cloud() {
		localEngine, ok := g.engines[g.local]
		if !ok || localEngine.Name() == engine.Name() {
			return failed(route, err)
		}
		log.Warn(ctx, "cloud engine failed, falling back to local", "local", g.local, "error", err)
		span.AddEvent("fallback", trace.WithAttributes(attribute.String("to", g.local)))
		g.metrics.IncFallback(ctx, engine.Name(), g.local)

		rep.FallbackUsed = true
		used = localEngine.Name()
		narrative, err = g.invoke(ctx, localEngine, pack, mode)
	}
	if err != nil {
		route.Engine = used
		out := failed(route, err)
		out.FallbackUsed = rep.FallbackUsed
		return out
	}

	narrative.Clamp()
	rep.Status = analysis.StatusCompleted
	rep.EngineUsed = used
	rep.Narrative = narrative
	rep = finish(rep)

	if useCache {
		if err := g.cache.Set(ctx, pack.Commit, hash, used, rep); err != nil {
			log.Warn(ctx, "failed to cache enrichment", "error", err)
		}
	}
	log.Info(ctx, "ai analysis completed",
		"engine_used", used, "fallback", rep.FallbackUsed, "duration_ms", rep.DurationMS)
	return rep
}

func (g *Gateway) invoke(
	ctx context.Context,
	engine Engine,
	pack analysis.EvidencePack,
	mode analysis.Mode,
) (analysis.Narrative, error) {
	ctx, span := g.tracer.Start(ctx, "ai_gateway.invoke",
		trace.WithAttributes(
			attribute.String("engine", engine.Name()),
			attribute.Bool("cloud", engine.Cloud()),
		))
	defer span.End()

	start := g.now()
	var (
		narrative analysis.Narrative
		attempts  int
	)
	err := g.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		var err error
		narrative, err = engine.Analyze(ctx, pack, mode)
		return err
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine call failed")
	}
	g.metrics.ObserveEngine(ctx, engine.Name(), status, g.now().Sub(start))
	if err != nil {
		return analysis.Narrative{}, fmt.Errorf("engine %s: %w", engine.Name(), err)
	}
	return narrative, nil
}
