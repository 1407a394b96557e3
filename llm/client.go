package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"racecoach/config"
)

// Client wraps the Google Gen AI client for a single concern: turning a
// coaching context payload into natural-language coaching text. Adapted
// from the strategy engine's GeminiClient/StrategyEngine pairing, trimmed
// to one request shape instead of a general strategy-analysis surface.
type Client struct {
	genai *genai.Client
	cfg   config.LLMConfig

	rateLimiter *RateLimiter
	classifier  ErrorClassifier
	reporter    *ErrorReporter
}

// NewClient builds a Client against the given configuration. Returns an
// EnrichError classified as Hard when the underlying SDK client cannot be
// constructed (bad key, bad backend config), matching §7's "LLM hard
// failure (auth/config) -> disable enrichment for the session".
func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &EnrichError{Kind: ErrAuthentication, Message: "no API key configured", Hard: true}
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &EnrichError{Kind: ErrAuthentication, Message: "failed to create gemini client", Cause: err, Hard: true}
	}

	return &Client{
		genai:       gc,
		cfg:         cfg,
		rateLimiter: NewRateLimiter(cfg.MaxRequestsPerMinute, cfg.BurstLimit),
		reporter:    NewErrorReporter(50),
	}, nil
}

// Generate sends prompt to the model, honoring the rate limiter and the
// request timeout carried by ctx. It returns the concatenated text of the
// first candidate, or a classified *EnrichError.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	if !c.rateLimiter.Allow() {
		err := &EnrichError{Kind: ErrRateLimit, Message: "local rate limit exceeded", Retryable: true, RetryAfter: time.Second}
		c.reporter.Report(err)
		return "", err
	}

	temperature := c.cfg.Temperature
	topP := c.cfg.TopP
	topK := c.cfg.TopK
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: maxTokens,
	}

	result, err := c.genai.Models.GenerateContent(ctx, c.cfg.Model, []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}},
	}, genConfig)
	if err != nil {
		classified := c.classifier.Classify(err)
		c.reporter.Report(classified)
		return "", classified
	}
	if result == nil || len(result.Candidates) == 0 {
		err := &EnrichError{Kind: ErrParsing, Message: "empty response"}
		c.reporter.Report(err)
		return "", err
	}

	candidate := result.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		err := &EnrichError{Kind: ErrParsing, Message: "no content in response"}
		c.reporter.Report(err)
		return "", err
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		err := &EnrichError{Kind: ErrParsing, Message: "empty text content"}
		c.reporter.Report(err)
		return "", err
	}
	return out, nil
}

// ErrorCounts exposes the classifier's running tally for diagnostics.
func (c *Client) ErrorCounts() map[ErrorKind]int { return c.reporter.Counts() }
