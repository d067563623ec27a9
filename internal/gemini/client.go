// Package gemini wraps the Google GenAI SDK for the model-assessment stage
// of the verification pipeline. The model call is strictly bounded: 30s
// timeout, JSON-only response, and any failure degrades the verification
// to heuristic-only instead of erroring out.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is used when GEMINI_MODEL is unset.
const DefaultModel = "gemini-2.0-flash"

// modelCallTimeout bounds a single GenerateContent call. The pipeline's
// overall deadline is separate and larger.
const modelCallTimeout = 30 * time.Second

// Verdict is the model's parsed assessment of a document.
type Verdict struct {
	Authentic  bool     `json:"authentic"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Flags      []string `json:"flags"`
}

// Client calls the Gemini API for document assessments.
type Client struct {
	gc    *genai.Client
	model string
}

// New creates a Gemini client. apiKey must be set; model falls back to
// DefaultModel when empty.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{gc: gc, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// AssessDocument sends the prompt (and the raster image when available)
// to the model and parses the JSON verdict from its reply.
// Returns the raw reply text alongside the parsed verdict so the caller
// can persist it for admin review.
func (c *Client) AssessDocument(ctx context.Context, prompt string, imageData []byte, imageMIME string) (Verdict, string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(imageData) > 0 && imageMIME != "" {
		parts = append(parts, genai.NewPartFromBytes(imageData, imageMIME))
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	}

	resp, err := c.gc.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return Verdict{}, "", fmt.Errorf("gemini: generate content: %w", err)
	}

	reply := resp.Text()
	verdict, err := ParseVerdict(reply)
	if err != nil {
		return Verdict{}, reply, err
	}
	return verdict, reply, nil
}

// ClassifyFailure maps a model call error to a short reason used in
// "model_unavailable:<reason>" flags and the model_calls metric.
func ClassifyFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoJSON):
		return "parse_error"
	case strings.Contains(err.Error(), "429"),
		strings.Contains(strings.ToLower(err.Error()), "resourceexhausted"),
		strings.Contains(strings.ToLower(err.Error()), "resource_exhausted"),
		strings.Contains(strings.ToLower(err.Error()), "rate limit"):
		return "rate_limited"
	default:
		return "error"
	}
}
