package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"google.golang.org/api/googleapi"
)

// MaxPromptChars bounds the prompt sent to the model; longer prompts are cut
const MaxPromptChars = 30000

const truncationMarker = "\n\n[Content truncated due to length...]"

var (
	ErrEmptyResponse   = errors.New("model returned empty content")
	ErrInvalidResponse = errors.New("model response is not valid JSON")
	ErrBlocked         = errors.New("model blocked the prompt")
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrProvider        = errors.New("model provider request failed")
)

// Role of a chat turn, as the provider names it
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Request is a single JSON-producing generation call
type Request struct {
	// Kind labels the call in logs and metrics, e.g. "summary"
	Kind   string
	System string
	Prompt string
}

// Message is one earlier chat turn
type Message struct {
	Role string
	Text string
}

// ChatRequest continues a conversation about a document
type ChatRequest struct {
	System  string
	History []Message
	Message string
}

// Client is the LLM provider used by the analysis pipeline and chat
type Client interface {
	// GenerateJSON asks for a JSON answer and decodes it into out
	GenerateJSON(ctx context.Context, req Request, out interface{}) error

	// Chat returns the model's plain-text reply to req.Message
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Model names the underlying model; it is part of stage cache keys
	Model() string
}

// Truncate cuts prompt to at most max bytes on a rune boundary and appends
// a marker. It reports whether anything was cut.
func Truncate(prompt string, max int) (string, bool) {
	if max <= 0 || len(prompt) <= max {
		return prompt, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + truncationMarker, true
}

// ParseJSON decodes the first JSON object or array found in text. Models
// often wrap JSON in markdown fences or add a sentence before it.
func ParseJSON(text string, out interface{}) error {
	raw, ok := extractJSON(text)
	if !ok {
		return fmt.Errorf("%w: no JSON value found", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```JSON")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// IsRetryable reports whether a failed call may succeed when repeated.
// Client errors from the provider and malformed requests are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyPrompt) || errors.Is(err, ErrBlocked) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return true
}
