// Package linear is a small client for the Linear GraphQL API covering the
// lookups the sync engine needs to enrich a project update.
package linear

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
	DefaultAPIURL  = "https://api.linear.app/graphql"
	defaultTimeout = 10 * time.Second
)

var (
	// ErrNoAPIKey is returned by every lookup when no key is configured.
	ErrNoAPIKey = errors.New("linear: api key not configured")
	// ErrNotFound is returned when the queried entity does not exist.
	ErrNotFound = errors.New("linear: not found")
)

const (
	teamQuery = `query($id: String!) {
  team(id: $id) {
    name
  }
}`

	projectTeamsQuery = `query($id: String!) {
  project(id: $id) {
    id
    name
    teams {
      nodes {
        id
        name
      }
    }
  }
}`

	projectStatusQuery = `query($id: String!) {
  project(id: $id) {
    id
    name
    status {
      name
      type
    }
  }
}`
)

// Client queries Linear. All calls share one breaker.
type Client struct {
	apiKey string
	apiURL string
	http   *transport.Client
	cb     *gobreaker.CircuitBreaker[json.RawMessage]
	logger *slog.Logger
}

// NewClient creates a Client. An empty apiURL uses the public endpoint.
func NewClient(apiKey, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	logger := slog.Default()
	return &Client{
		apiKey: apiKey,
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   transport.New("linear", defaultTimeout),
		cb: breaker.New[json.RawMessage](breaker.Settings{
			Name: "linear",
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
		}, logger),
		logger: logger,
	}
}

// Configured reports whether lookups can be made.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, q string, id string) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	body, err := json.Marshal(graphQLRequest{Query: q, Variables: map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}

	return breaker.Execute(c.cb, func() (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()

		resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", c.apiKey)
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var gr graphQLResponse
		if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
			return nil, fmt.Errorf("linear: decoding response: %w", err)
		}
		if len(gr.Errors) > 0 {
			return nil, fmt.Errorf("linear: %s", gr.Errors[0].Message)
		}
		return gr.Data, nil
	})
}

// TeamName returns the name of the team with the given id.
func (c *Client) TeamName(ctx context.Context, teamID string) (string, error) {
	data, err := c.query(ctx, teamQuery, teamID)
	if err != nil {
		return "", err
	}
	var out struct {
		Team *struct {
			Name string `json:"name"`
		} `json:"team"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("linear: decoding team: %w", err)
	}
	if out.Team == nil || out.Team.Name == "" {
		return "", ErrNotFound
	}
	return out.Team.Name, nil
}

// ProjectTeams returns the names of every team the project belongs to.
func (c *Client) ProjectTeams(ctx context.Context, projectID string) ([]string, error) {
	data, err := c.query(ctx, projectTeamsQuery, projectID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Project *struct {
			Teams struct {
				Nodes []struct {
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"teams"`
		} `json:"project"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("linear: decoding project: %w", err)
	}
	if out.Project == nil {
		return nil, ErrNotFound
	}
	var names []string
	for _, n := range out.Project.Teams.Nodes {
		if n.Name != "" {
			names = append(names, n.Name)
		}
	}
	c.logger.Debug("fetched project teams", "project_id", projectID, "count", len(names))
	return names, nil
}

// ProjectStatus returns the status name of the project, e.g. "In Progress".
func (c *Client) ProjectStatus(ctx context.Context, projectID string) (string, error) {
	data, err := c.query(ctx, projectStatusQuery, projectID)
	if err != nil {
		return "", err
	}
	var out struct {
		Project *struct {
			Status *struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"status"`
		} `json:"project"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("linear: decoding project: %w", err)
	}
	if out.Project == nil || out.Project.Status == nil || out.Project.Status.Name == "" {
		return "", ErrNotFound
	}
	return out.Project.Status.Name, nil
}
