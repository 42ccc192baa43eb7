// Package oracle provides the language-model transformers that turn freeform
// update text into a {"blocks": [...]} document.
package oracle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/lnsync/internal/blocks"
)

// Providers accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Error wraps any oracle failure. Callers never surface it; the converter
// falls back to deterministic output.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options selects and configures a provider.
type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// New returns the transformer for opts.Provider, or nil for "none".
func New(opts Options) (blocks.Transformer, error) {
	switch opts.Provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("oracle: openai provider requires an api key")
		}
		return NewOpenAI(opts), nil
	case ProviderOllama:
		return NewOllama(opts), nil
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q", opts.Provider)
	}
}
