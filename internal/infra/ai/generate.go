package ai

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

var _ appai.Engine = (*GenerateEngine)(nil)

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// GenerateEngine talks to a locally hosted /api/generate endpoint.
type GenerateEngine struct {
	cfg    EngineConfig
	client *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewGenerateEngine creates a GenerateEngine. client may be nil.
func NewGenerateEngine(cfg EngineConfig, client *http.Client, log *logger.Logger, tracer trace.Tracer) *GenerateEngine {
	return &GenerateEngine{
		cfg:    cfg,
		client: newHTTPClient(cfg, client),
		logger: log.With("component", "generate_engine", "engine", cfg.Name),
		tracer: tracer,
	}
}

func (e *GenerateEngine) Name() string { return e.cfg.Name }
func (e *GenerateEngine) Cloud() bool  { return false }

// Analyze implements appai.Engine.
func (e *GenerateEngine) Analyze(
	ctx context.Context,
	pack analysis.EvidencePack,
	mode analysis.Mode,
) (analysis.Narrative, error) {
	ctx, span := e.tracer.Start(ctx, "generate_engine.analyze",
		trace.WithAttributes(
			attribute.String("engine", e.cfg.Name),
			attribute.String("model", e.cfg.Model),
		))
	defer span.End()

	prompt, err := userPrompt(pack, mode)
	if err != nil {
		return analysis.Narrative{}, err
	}

	req := generateRequest{
		Model:   e.cfg.Model,
		System:  systemPrompt(),
		Prompt:  prompt,
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": e.cfg.Temperature},
	}
	if e.cfg.MaxTokens > 0 {
		req.Options["num_predict"] = e.cfg.MaxTokens
	}

	var resp generateResponse
	if err := postJSON(ctx, e.client, e.cfg.endpoint("/api/generate"), nil, req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate request failed")
		return analysis.Narrative{}, fmt.Errorf("generate: %w", err)
	}

	n, ok := ParseNarrative(resp.Response)
	if !ok {
		span.AddEvent("unparseable_response")
		e.logger.Warn(ctx, "engine answer was not valid JSON, using fallback narrative")
	}
	return n, nil
}
