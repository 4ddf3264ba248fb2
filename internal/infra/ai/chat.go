package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

var _ appai.Engine = (*ChatEngine)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatEngine talks to an OpenAI-compatible /v1/chat/completions endpoint.
type ChatEngine struct {
	cfg    EngineConfig
	client *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewChatEngine creates a ChatEngine. client may be nil.
func NewChatEngine(cfg EngineConfig, client *http.Client, log *logger.Logger, tracer trace.Tracer) *ChatEngine {
	return &ChatEngine{
		cfg:    cfg,
		client: newHTTPClient(cfg, client),
		logger: log.With("component", "chat_engine", "engine", cfg.Name),
		tracer: tracer,
	}
}

func (e *ChatEngine) Name() string { return e.cfg.Name }
func (e *ChatEngine) Cloud() bool  { return true }

// Analyze implements appai.Engine.
func (e *ChatEngine) Analyze(
	ctx context.Context,
	pack analysis.EvidencePack,
	mode analysis.Mode,
) (analysis.Narrative, error) {
	ctx, span := e.tracer.Start(ctx, "chat_engine.analyze",
		trace.WithAttributes(
			attribute.String("engine", e.cfg.Name),
			attribute.String("model", e.cfg.Model),
		))
	defer span.End()

	prompt, err := userPrompt(pack, mode)
	if err != nil {
		return analysis.Narrative{}, err
	}

	req := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      e.cfg.MaxTokens,
		Temperature:    e.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{}
	if e.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + e.cfg.APIKey
	}

	var resp chatResponse
	if err := postJSON(ctx, e.client, e.cfg.endpoint("/v1/chat/completions"), headers, req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return analysis.Narrative{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("chat completion returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return analysis.Narrative{}, err
	}

	n, ok := ParseNarrative(resp.Choices[0].Message.Content)
	if !ok {
		span.AddEvent("unparseable_response")
		e.logger.Warn(ctx, "engine answer was not valid JSON, using fallback narrative")
	}
	return n, nil
}
