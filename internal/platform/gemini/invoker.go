package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trajectorie/inference-queue/internal/config"
	"github.com/trajectorie/inference-queue/internal/inference"
	"github.com/trajectorie/inference-queue/internal/redact"
	"google.golang.org/genai"
)

// Invoker implements the inference.Invoker interface using Google's Gemini
// API. Each Invoke makes exactly one generation call; the queue engine owns
// retries.
type Invoker struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	model  string
}

// NewInvoker creates a new Gemini-backed Invoker with the provided
// dependencies.
func NewInvoker(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Invoker, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Invoker{
		logger: logger.With("component", "gemini_invoker"),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Invoke performs one inference call for the given request.
func (g *Invoker) Invoke(ctx context.Context, req inference.Request) (*inference.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInvalidRequest, err)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInvalidRequest, err)
	}

	g.logger.DebugContext(ctx, "making Gemini API call",
		"operation", req.Operation,
		"model", g.model,
		"prompt_length", len(prompt))

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	elapsed := time.Since(started)

	if err != nil {
		classified := classifyError(err)
		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"operation", req.Operation,
			"elapsed", elapsed,
			"error", classified)
		return nil, classified
	}

	text, err := extractText(resp)
	if err != nil {
		g.logger.ErrorContext(ctx, "Gemini response unusable",
			"operation", req.Operation,
			"error", err)
		return nil, err
	}

	g.logger.InfoContext(ctx, "Gemini API call successful",
		"operation", req.Operation,
		"elapsed", elapsed,
		"response_length", len(text))

	return &inference.Result{
		Text:    text,
		Model:   g.model,
		Elapsed: elapsed,
	}, nil
}

// extractText pulls the response text out of a generation response,
// mapping empty or blocked responses to permanent failures.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", inference.ErrInvalidResponse)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", inference.ErrInvalidResponse)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: generation stopped by safety filters", inference.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty content in response", inference.ErrInvalidResponse)
	}

	return text, nil
}

// classifyError maps provider errors onto the inference failure taxonomy.
// Rate limiting and server-side failures are transient; other HTTP-level
// rejections are permanent. Unrecognized errors (network failures, timeouts)
// are assumed transient. Messages are scrubbed because provider errors can
// echo the request URL, API key included, and task errors are surfaced to
// clients.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", inference.ErrRateLimited, redact.String(apiErr.Message))
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %s", inference.ErrUnavailable, redact.String(apiErr.Message))
		case apiErr.Code >= 400:
			return fmt.Errorf("%w: %s", inference.ErrInvalidRequest, redact.String(apiErr.Message))
		}
	}

	return fmt.Errorf("%w: %s", inference.ErrUnavailable, redact.Error(err))
}

// Ensure Invoker implements inference.Invoker
var _ inference.Invoker = (*Invoker)(nil)
