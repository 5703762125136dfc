// Package provider adapts text-generation backends to a single tagged-result call.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotConfigured means no enabled provider with credentials exists.
	ErrNotConfigured = errors.New("no AI provider configured")
	ErrEmptyResponse = errors.New("empty response from AI")
	ErrInvalidJSON   = errors.New("invalid JSON response from AI")
)

// Request is one generation call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// Seed asks for reproducible sampling where the backend supports it.
	Seed *int64
	// JSON asks the backend to answer with a single JSON object.
	JSON bool
}

// Result is either generated text or the error that prevented it.
type Result struct {
	Text string
	Err  error
}

func Text(s string) Result { return Result{Text: s} }
func Failure(err error) Result { return Result{Err: err} }

// Ok reports whether the call produced text.
func (r Result) Ok() bool { return r.Err == nil }

// Decode unmarshals the text into out. Markdown fences and chatter around the
// outermost object are tolerated.
func (r Result) Decode(out interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	return unmarshalAIJSON(r.Text, out)
}

// Provider generates text. Implementations never panic on backend failures;
// they report them through Result.Err.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) Result
}

func unmarshalAIJSON(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if strings.HasPrefix(cleaned, "{") {
		if err := json.Unmarshal([]byte(cleaned), out); err == nil {
			return nil
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalidJSON, truncateText(cleaned, 80))
}

func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
