package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

const engineAnswer = `{"summary":"filters ignored","risk_score":70,"confidence":0.9,` +
	`"root_causes":[{"cause":"filter","evidence_ids":["F1"],"severity":"high","explanation":"e"}],` +
	`"recommendations":[{"title":"fix filter","priority":"P1","effort":"low","description":"d"}]}`

func testPack() analysis.EvidencePack {
	return analysis.EvidencePack{
		ScanID:       "s1",
		GateStatus:   "FAIL",
		RiskTriggers: []string{"respects_filter"},
		Checklist:    map[string]bool{"filters_functioning": false},
		TopFindings: []analysis.EvidenceFinding{
			{ID: "F1", CheckID: "contract_validation", Severity: "high", RuleName: "respects_filter"},
			{ID: "F2", CheckID: "contract_validation", Severity: "high", RuleName: "respects_filter"},
			{ID: "F3", CheckID: "api_health", Severity: "medium"},
		},
		Metrics: analysis.PerformanceMetrics{TotalFindings: 3},
	}
}

func engineConfig(url string) EngineConfig {
	return EngineConfig{Name: "test", BaseURL: url, Model: "m", APIKey: "secret-key", Timeout: time.Second}
}

var testTracer = noop.NewTracerProvider().Tracer("test")

func TestChatEngine_Analyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "risk_score")
		assert.Contains(t, req.Messages[1].Content, `"scan_id": "s1"`)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{
				"role": "assistant", "content": "```json\n" + engineAnswer + "\n```",
			}}},
		})
	}))
	defer srv.Close()

	e := NewChatEngine(engineConfig(srv.URL), nil, logger.Noop(), testTracer)
	assert.True(t, e.Cloud())

	n, err := e.Analyze(context.Background(), testPack(), analysis.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "filters ignored", n.Summary)
	assert.Equal(t, 70, n.RiskScore)
	require.Len(t, n.RootCauses, 1)
	assert.Equal(t, []string{"F1"}, n.RootCauses[0].EvidenceIDs)
}

func TestChatEngine_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewChatEngine(engineConfig(srv.URL), nil, logger.Noop(), testTracer).
		Analyze(context.Background(), testPack(), analysis.ModeQuick)
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Equal(t, "slow down", perr.Message)
}

func TestChatEngine_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cfg := engineConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	_, err := NewChatEngine(cfg, nil, logger.Noop(), testTracer).
		Analyze(context.Background(), testPack(), analysis.ModeStandard)
	assert.Error(t, err)
}

func TestMessagesEngine_Analyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, messagesAPIVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.System, "JSON object")
		assert.Equal(t, 4096, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Sure. "},
				{"type": "text", "text": engineAnswer},
			},
		})
	}))
	defer srv.Close()

	n, err := NewMessagesEngine(engineConfig(srv.URL), nil, logger.Noop(), testTracer).
		Analyze(context.Background(), testPack(), analysis.ModeDeep)
	require.NoError(t, err)
	assert.Equal(t, 70, n.RiskScore)
	assert.InDelta(t, 0.9, n.Confidence, 1e-9)
}

func TestGenerateEngine_UnparseableAnswerDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "I think it's fine", Done: true})
	}))
	defer srv.Close()

	cfg := engineConfig(srv.URL)
	cfg.APIKey = ""
	e := NewGenerateEngine(cfg, nil, logger.Noop(), testTracer)
	assert.False(t, e.Cloud())

	n, err := e.Analyze(context.Background(), testPack(), analysis.ModeStandard)
	require.NoError(t, err, "parse failures are degraded results, not errors")
	assert.Equal(t, FallbackRiskScore, n.RiskScore)
	assert.InDelta(t, FallbackConfidence, n.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(n.Summary, "The analysis engine returned an unreadable answer."))
}

func TestMockEngine_Analyze(t *testing.T) {
	t.Parallel()

	e := NewMockEngine("")
	assert.Equal(t, MockEngineName, e.Name())
	assert.False(t, e.Cloud())

	n, err := e.Analyze(context.Background(), testPack(), analysis.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, 48, n.RiskScore)
	require.Len(t, n.RootCauses, 2)
	assert.Equal(t, "respects_filter", n.RootCauses[0].Cause)
	assert.Equal(t, []string{"F1", "F2"}, n.RootCauses[0].EvidenceIDs)
	assert.Equal(t, "api_health", n.RootCauses[1].Cause)
	assert.Equal(t, "P1", n.Recommendations[0].Priority)
	assert.Equal(t, []string{"risk trigger: respects_filter"}, n.NotableAnomalies)
	assert.Equal(t, []string{"re-verify filters_functioning"}, n.SuggestedNextChecks)

	again, err := e.Analyze(context.Background(), testPack(), analysis.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, n, again, "mock output is deterministic")
}
