package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kalambet/lnsync/internal/breaker"
	"github.com/kalambet/lnsync/internal/transport"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultTimeout       = 30 * time.Second
	temperature          = 0.3
)

// OpenAI calls the chat completions endpoint in JSON-object mode.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	http    *transport.Client
	cb      *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewOpenAI creates an OpenAI transformer.
func NewOpenAI(opts Options) *OpenAI {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    transport.New("openai", timeout),
		cb:      breaker.New[string](breaker.Settings{Name: "openai"}, logger),
		logger:  logger,
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Transform implements blocks.Transformer.
func (c *OpenAI) Transform(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:          c.model,
		Messages:       BuildMessages(text),
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    temperature,
	})
	if err != nil {
		return "", &Error{Provider: ProviderOpenAI, Err: err}
	}

	out, err := breaker.Execute(c.cb, func() (string, error) {
		return c.complete(ctx, body)
	})
	if err != nil {
		return "", &Error{Provider: ProviderOpenAI, Err: err}
	}
	return out, nil
}

func (c *OpenAI) complete(ctx context.Context, body []byte) (string, error) {
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	content := result.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("completion is empty")
	}
	return content, nil
}
