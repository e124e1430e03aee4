// Package synthesis turns merged citations into human-readable answer text.
// The orchestrator depends only on the Synthesizer contract; the concrete
// client is selected at wiring time. A synthesis failure never fails a
// workflow, since the orchestrator substitutes a visible fallback.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is the sentinel failure mode of a synthesizer; callers
// degrade gracefully when they see it.
var ErrUnavailable = errors.New("synthesis unavailable")

// Message is one turn of the synthesis prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the synthesis contract input.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Synthesizer produces text from a prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// Echo is a deterministic synthesizer used when no LLM is configured. It
// restates the question and the cited sources so development and tests run
// without network access.
type Echo struct{}

func (Echo) Synthesize(_ context.Context, req Request) (string, error) {
	var question string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			question = msg.Content
		}
	}
	if question == "" {
		return "", fmt.Errorf("%w: no user message in prompt", ErrUnavailable)
	}

	var b strings.Builder
	b.WriteString("Based on the retrieved sources: ")
	b.WriteString(firstLine(question))
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
