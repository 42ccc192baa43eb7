// Package notion implements the document store on top of the Notion REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kalambet/lnsync/internal/breaker"
	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/transport"
)

const (
	DefaultAPIURL   = "https://api.notion.com/v1"
	DefaultVersion  = "2022-06-28"
	DefaultRPS      = 3
	DefaultIcon     = "📅"
	defaultTimeout  = 20 * time.Second
	maxAppendBlocks = 100
)

// Options configures a Client.
type Options struct {
	APIKey            string
	DatabaseID        string
	RollupDatabaseID  string
	BaseURL           string
	Version           string
	RequestsPerSecond float64
	Timeout           time.Duration
	RollupIcon        string
	Logger            *slog.Logger
}

// Client is a docstore.Store backed by two Notion databases: one holding a
// page per update and one holding a page per rollup. They may be the same.
type Client struct {
	apiKey     string
	databaseID string
	rollupDBID string
	baseURL    string
	version    string
	icon       string
	http       *transport.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
}

var _ docstore.Store = (*Client)(nil)

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("notion: api key is required")
	}
	if opts.DatabaseID == "" {
		return nil, errors.New("notion: database id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIURL
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRPS
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RollupDatabaseID == "" {
		opts.RollupDatabaseID = opts.DatabaseID
	}
	if opts.RollupIcon == "" {
		opts.RollupIcon = DefaultIcon
	}

	c := &Client{
		apiKey:     opts.APIKey,
		databaseID: opts.DatabaseID,
		rollupDBID: opts.RollupDatabaseID,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		version:    opts.Version,
		icon:       opts.RollupIcon,
		http:       transport.New("notion", opts.Timeout),
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		cb: breaker.New[struct{}](breaker.Settings{
			Name:         "notion",
			IsSuccessful: clientSideError,
		}, logger),
		logger: logger,
	}
	c.http.Wait = c.limiter.Wait
	return c, nil
}

// clientSideError keeps 4xx answers other than 429 from tripping the breaker:
// the API is up, the request was wrong.
func clientSideError(err error) bool {
	if err == nil {
		return true
	}
	var se *transport.StatusError
	return errors.As(err, &se) && se.Status >= 400 && se.Status < 500
}

// do sends one JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &docstore.IOError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		body = b
	}

	_, err := breaker.Execute(c.cb, func() (struct{}, error) {
		resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
			var rd io.Reader
			if body != nil {
				rd = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("Notion-Version", c.version)
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			return req, nil
		})
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, fmt.Errorf("decoding response: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return mapError(op, err)
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		if se.Status == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, docstore.ErrNotFound)
		}
		return &docstore.IOError{Op: op, Status: se.Status, Err: err}
	}
	return &docstore.IOError{Op: op, Err: err}
}
