package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/buenobot/internal/app/evidence"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

func criticalPack() analysis.EvidencePack {
	return analysis.EvidencePack{
		ScanID:      "s1",
		Commit:      "abc",
		GateStatus:  "FAIL",
		TopFindings: findings("critical"),
	}
}

type gatewayFixture struct {
	cloud *fakeEngine
	local *fakeEngine
	cache *memCache
	gw    *Gateway
}

func newGatewayFixture(t *testing.T, cfg GatewayConfig, cloudErrs ...error) gatewayFixture {
	t.Helper()

	f := gatewayFixture{
		cloud: &fakeEngine{name: "claude", cloud: true, errs: cloudErrs,
			out: analysis.Narrative{Summary: "cloud says", RiskScore: 180, Confidence: 0.9}},
		local: &fakeEngine{name: "ollama",
			out: analysis.Narrative{Summary: "local says", RiskScore: 40, Confidence: 0.5}},
		cache: newMemCache(),
	}
	m, err := NewGatewayMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		CloudEngines:  []string{"claude"},
		LocalEngine:   "ollama",
		RouteCritical: true,
	})
	f.gw = NewGateway(cfg, router, []Engine{f.cloud, f.local}, "ollama", m,
		logger.Noop(), noop.NewTracerProvider().Tracer("test"), WithCache(f.cache))
	return f
}

func TestGateway_Disabled(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: false, CacheEnabled: true})
	rep := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeDeep, "")

	assert.Equal(t, analysis.StatusSkipped, rep.Status)
	assert.Zero(t, f.cloud.callCount())
	assert.Zero(t, f.local.callCount())
	assert.Zero(t, f.cache.sets)
}

func TestGateway_CompletedAndCached(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true, CacheEnabled: true})
	ctx := context.Background()

	first := f.gw.Analyze(ctx, criticalPack(), analysis.ModeStandard, "")
	assert.Equal(t, analysis.StatusCompleted, first.Status)
	assert.Equal(t, "claude", first.EngineUsed)
	assert.Equal(t, ReasonCritical, first.RoutingReason)
	assert.Equal(t, 100, first.RiskScore, "risk score is clamped")
	assert.False(t, first.Cached)
	assert.Equal(t, 1, f.cache.sets)

	second := f.gw.Analyze(ctx, criticalPack(), analysis.ModeStandard, "")
	assert.True(t, second.Cached)
	assert.Equal(t, "cloud says", second.Summary)
	assert.Equal(t, 1, f.cloud.callCount(), "cache hit skips the engine")

	other := criticalPack()
	other.ScanID = "s2"
	third := f.gw.Analyze(ctx, other, analysis.ModeStandard, "")
	assert.True(t, third.Cached, "scan id does not affect the cache key")
}

func TestGateway_CloudFailureFallsBackToLocal(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true, CacheEnabled: true}, context.DeadlineExceeded)
	rep := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeStandard, "")

	assert.Equal(t, analysis.StatusCompleted, rep.Status)
	assert.True(t, rep.FallbackUsed)
	assert.Equal(t, "ollama", rep.EngineUsed)
	assert.Equal(t, "local says", rep.Summary)
	assert.Equal(t, 1, f.cloud.callCount())
	assert.Equal(t, 1, f.local.callCount())

	_, cloudHit := f.cache.Get(context.Background(), "abc", mustHash(t, criticalPack()), "claude")
	assert.False(t, cloudHit)
	_, localHit := f.cache.Get(context.Background(), "abc", mustHash(t, criticalPack()), "ollama")
	assert.True(t, localHit, "fallback result is cached under the engine that produced it")
}

func TestGateway_BothEnginesFail(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true, CacheEnabled: true}, errors.New("503"))
	f.local.errs = []error{errors.New("connection refused")}

	rep := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeStandard, "")
	assert.Equal(t, analysis.StatusFailed, rep.Status)
	assert.True(t, rep.FallbackUsed)
	assert.Contains(t, rep.Error, "connection refused")
	assert.Zero(t, f.cache.sets, "failed results are never cached")
}

func TestGateway_LocalFailureHasNoFallback(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true})
	f.local.errs = []error{errors.New("model not found")}

	pack := criticalPack()
	pack.TopFindings = findings("low")
	rep := f.gw.Analyze(context.Background(), pack, analysis.ModeQuick, "")

	assert.Equal(t, analysis.StatusFailed, rep.Status)
	assert.False(t, rep.FallbackUsed)
	assert.Equal(t, "ollama", rep.EngineUsed)
	assert.Zero(t, f.cloud.callCount())
}

func TestGateway_ForcedEngine(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true})

	rep := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeDeep, "ollama")
	assert.Equal(t, analysis.StatusCompleted, rep.Status)
	assert.Equal(t, "ollama", rep.EngineUsed)
	assert.Equal(t, ReasonForced, rep.RoutingReason)
	assert.Zero(t, f.cloud.callCount())

	unknown := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeDeep, "gpt-9")
	assert.Equal(t, analysis.StatusFailed, unknown.Status)
	assert.Contains(t, unknown.Error, "unknown engine")
}

func TestGateway_RetryPolicy(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	f := newGatewayFixture(t, GatewayConfig{Enabled: true, Retry: policy},
		errors.New("429"), errors.New("429"), nil)

	rep := f.gw.Analyze(context.Background(), criticalPack(), analysis.ModeStandard, "")
	assert.Equal(t, analysis.StatusCompleted, rep.Status)
	assert.Equal(t, "claude", rep.EngineUsed)
	assert.False(t, rep.FallbackUsed)
	assert.Equal(t, 3, f.cloud.callCount())
	assert.Zero(t, f.local.callCount())
}

func TestRetryPolicy_StopsOnContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryPolicy{MaxRetries: 5, InitialInterval: time.Millisecond}.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestReportEnricher(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t, GatewayConfig{Enabled: true})
	enricher := NewReportEnricher(evidence.NewBuilder(evidence.Config{}, nil), f.gw)

	r := scanning.NewReport(scanning.Metadata{ScanID: "s1", Commit: "abc"})
	r.AddResult(scanning.CheckResult{
		CheckID: "hardcoded_secrets", Category: scanning.CategorySecurity, Status: scanning.CheckStatusFailed,
		Findings: []scanning.Finding{scanning.NewFinding("[hardcoded_credentials] key", "", scanning.SeverityCritical)},
	})

	rep := enricher.Enrich(context.Background(), r.Clone(), appscanning.EnrichOptions{Mode: analysis.ModeStandard})
	assert.Equal(t, analysis.StatusCompleted, rep.Status)
	assert.Equal(t, "claude", rep.EngineUsed)
	assert.Positive(t, rep.ComplexityScore)
}

func mustHash(t *testing.T, p analysis.EvidencePack) string {
	t.Helper()
	h, err := p.Hash()
	require.NoError(t, err)
	return h
}
