package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"parcelmail/internal/carriers"
)

const DefaultModel = "gpt-4o-mini"

// OpenAIConfig configures the hosted language-model tier.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient wraps the chat completion API behind the Completer
// interface.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// AIFieldExtractor implements carriers.AIExtractor on top of any
// Completer, with in-process rate limiting and a daily call quota.
type AIFieldExtractor struct {
	completer Completer
	limiter   *RateLimiter
	logger    *slog.Logger
	enabled   bool
}

func NewAIFieldExtractor(completer Completer, limiter *RateLimiter, logger *slog.Logger) *AIFieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIFieldExtractor{
		completer: completer,
		limiter:   limiter,
		logger:    logger,
		enabled:   completer != nil,
	}
}

func (e *AIFieldExtractor) Enabled() bool { return e.enabled }

// ExtractFields builds the stage-specific prompt, applies the rate
// limiter, and parses the single-JSON-object contract out of the reply.
func (e *AIFieldExtractor) ExtractFields(ctx context.Context, stage carriers.Status, subject, body string) (*carriers.AIResult, error) {
	if !e.enabled {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ai call skipped: %w", err)
		}
	}

	prompt := BuildPrompt(stage, subject, body)
	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	result, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("unparsable model output: %w", err)
	}
	return result, nil
}

func unmarshalResult(jsonText string) (*carriers.AIResult, error) {
	var res carriers.AIResult
	dec := json.NewDecoder(strings.NewReader(jsonText))
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("decode extraction JSON: %w", err)
	}
	return &res, nil
}
