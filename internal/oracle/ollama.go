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

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kalambet/lnsync/internal/breaker"
	"github.com/kalambet/lnsync/internal/transport"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2"
)

// Ollama calls a local Ollama instance with a structured-output schema.
type Ollama struct {
	baseURL string
	model   string
	http    *transport.Client
	cb      *gobreaker.CircuitBreaker[string]
}

// NewOllama creates an Ollama transformer. The OpenAI default base URL is
// not meaningful here and is replaced by the local default.
func NewOllama(opts Options) *Ollama {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := opts.BaseURL
	if baseURL == "" || baseURL == defaultOpenAIBaseURL {
		baseURL = defaultOllamaBaseURL
	}
	model := opts.Model
	if model == "" || model == defaultOpenAIModel {
		model = defaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    transport.New("ollama", timeout),
		cb:      breaker.New[string](breaker.Settings{Name: "ollama"}, logger),
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   any       `json:"format,omitempty"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
}

// Transform implements blocks.Transformer.
func (c *Ollama) Transform(ctx context.Context, text string) (string, error) {
	cr := ollamaChatRequest{
		Model:    c.model,
		Messages: BuildMessages(text),
		Format:   blocksSchema,
	}
	cr.Options.Temperature = temperature

	body, err := json.Marshal(cr)
	if err != nil {
		return "", &Error{Provider: ProviderOllama, Err: err}
	}

	out, err := breaker.Execute(c.cb, func() (string, error) {
		return c.chat(ctx, body)
	})
	if err != nil {
		return "", &Error{Provider: ProviderOllama, Err: err}
	}
	return out, nil
}

func (c *Ollama) chat(ctx context.Context, body []byte) (string, error) {
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return "", errors.New("chat response is empty")
	}
	return result.Message.Content, nil
}
