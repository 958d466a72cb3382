package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contractdesk-backend/logger"
	"contractdesk-backend/metrics"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient talks to Gemini through the generative-ai-go SDK
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxPrompt   int
	log         logger.ILogger
}

// GeminiOption is a functional option for GeminiClient
type GeminiOption func(*GeminiClient)

// GeminiWithTemperature sets the sampling temperature
func GeminiWithTemperature(t float32) GeminiOption {
	return func(c *GeminiClient) {
		c.temperature = t
	}
}

// GeminiWithLogger sets the logger
func GeminiWithLogger(l logger.ILogger) GeminiOption {
	return func(c *GeminiClient) {
		c.log = l
	}
}

// GeminiWithMaxPrompt overrides MaxPromptChars
func GeminiWithMaxPrompt(n int) GeminiOption {
	return func(c *GeminiClient) {
		c.maxPrompt = n
	}
}

// NewGeminiClient opens a genai client with an API key
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewGeminiClientFromGenai(client, model, opts...), nil
}

// NewGeminiClientFromGenai wraps an existing genai client
func NewGeminiClientFromGenai(client *genai.Client, model string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		client:      client,
		model:       model,
		temperature: 0.2,
		maxPrompt:   MaxPromptChars,
		log:         logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name
func (c *GeminiClient) Model() string {
	return c.model
}

// Close releases the underlying client
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) generativeModel(system string) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model
}

func (c *GeminiClient) truncate(kind, prompt string) string {
	out, cut := Truncate(prompt, c.maxPrompt)
	if cut {
		c.log.Warn("LLM", "Prompt too long, truncating", map[string]interface{}{
			"kind":   kind,
			"length": len(prompt),
			"limit":  c.maxPrompt,
		})
	}
	return out
}

// GenerateJSON implements Client
func (c *GeminiClient) GenerateJSON(ctx context.Context, req Request, out interface{}) (err error) {
	defer func() { metrics.RecordLLMCall(req.Kind, err) }()

	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}

	model := c.generativeModel(req.System)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(c.truncate(req.Kind, req.Prompt)))
	if err != nil {
		return c.wrapError(err)
	}

	text, err := c.responseText(req.Kind, resp)
	if err != nil {
		return err
	}
	return ParseJSON(text, out)
}

// Chat implements Client
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (reply string, err error) {
	defer func() { metrics.RecordLLMCall("chat", err) }()

	if strings.TrimSpace(req.Message) == "" {
		return "", ErrEmptyPrompt
	}

	model := c.generativeModel(c.truncate("chat", req.System))
	cs := model.StartChat()
	for _, m := range req.History {
		role := RoleUser
		if m.Role == RoleModel {
			role = RoleModel
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return "", c.wrapError(err)
	}
	return c.responseText("chat", resp)
}

func (c *GeminiClient) wrapError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	return fmt.Errorf("%w: gemini: %w", ErrProvider, err)
}

func (c *GeminiClient) responseText(kind string, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		c.log.Warn("LLM", "API returned no candidates", map[string]interface{}{"kind": kind})
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			c.log.Warn("LLM", "Candidate finished early", map[string]interface{}{
				"kind":          kind,
				"candidate":     i,
				"finish_reason": candidate.FinishReason.String(),
			})
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
