package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

var _ appai.Engine = (*MessagesEngine)(nil)

const messagesAPIVersion = "2023-06-01"

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// MessagesEngine talks to a /v1/messages style endpoint authenticated with
// an x-api-key header.
type MessagesEngine struct {
	cfg    EngineConfig
	client *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewMessagesEngine creates a MessagesEngine. client may be nil.
func NewMessagesEngine(cfg EngineConfig, client *http.Client, log *logger.Logger, tracer trace.Tracer) *MessagesEngine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &MessagesEngine{
		cfg:    cfg,
		client: newHTTPClient(cfg, client),
		logger: log.With("component", "messages_engine", "engine", cfg.Name),
		tracer: tracer,
	}
}

func (e *MessagesEngine) Name() string { return e.cfg.Name }
func (e *MessagesEngine) Cloud() bool  { return true }

// Analyze implements appai.Engine.
func (e *MessagesEngine) Analyze(
	ctx context.Context,
	pack analysis.EvidencePack,
	mode analysis.Mode,
) (analysis.Narrative, error) {
	ctx, span := e.tracer.Start(ctx, "messages_engine.analyze",
		trace.WithAttributes(
			attribute.String("engine", e.cfg.Name),
			attribute.String("model", e.cfg.Model),
		))
	defer span.End()

	prompt, err := userPrompt(pack, mode)
	if err != nil {
		return analysis.Narrative{}, err
	}

	req := messagesRequest{
		Model:       e.cfg.Model,
		System:      systemPrompt(),
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         e.cfg.APIKey,
		"anthropic-version": messagesAPIVersion,
	}

	var resp messagesResponse
	if err := postJSON(ctx, e.client, e.cfg.endpoint("/v1/messages"), headers, req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "messages request failed")
		return analysis.Narrative{}, fmt.Errorf("messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	n, ok := ParseNarrative(text.String())
	if !ok {
		span.AddEvent("unparseable_response")
		e.logger.Warn(ctx, "engine answer was not valid JSON, using fallback narrative")
	}
	return n, nil
}
