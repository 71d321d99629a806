package parser

import (
	"context"

	"parcelmail/internal/carriers"
)

// Completer is the minimal surface needed from a language-model client.
// The production implementation wraps the OpenAI chat API; tests supply a
// deterministic stub.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NoOpExtractor disables the language-model tier entirely. The pipeline
// degrades to regex-only extraction when it is in play.
type NoOpExtractor struct{}

func NewNoOpExtractor() *NoOpExtractor { return &NoOpExtractor{} }

func (n *NoOpExtractor) ExtractFields(ctx context.Context, stage carriers.Status, subject, body string) (*carriers.AIResult, error) {
	return nil, nil
}

func (n *NoOpExtractor) Enabled() bool { return false }
