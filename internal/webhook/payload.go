package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// TypeProjectUpdate is the only webhook type the relay processes.
const TypeProjectUpdate = "ProjectUpdate"

// Action is the lifecycle action of a delivery.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Processable reports whether the action can mutate state.
func (a Action) Processable() bool {
	return a == ActionCreate || a == ActionUpdate
}

// MalformedPayloadError rejects a delivery whose body lacks the required shape.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Envelope is the outer shape of every delivery.
type Envelope struct {
	Action           Action          `json:"action" validate:"required"`
	Type             string          `json:"type" validate:"required"`
	Data             json.RawMessage `json:"data"`
	URL              string          `json:"url"`
	WebhookTimestamp Millis          `json:"webhookTimestamp"`
}

// Millis is a millisecond epoch timestamp sent either as a number or a
// numeric string. Zero means absent.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("webhookTimestamp: %w", err)
	}
	*m = Millis(int64(f))
	return nil
}

// ParseEnvelope decodes and validates the outer delivery shape.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &MalformedPayloadError{Reason: "invalid JSON", Err: err}
	}
	if err := getValidator().Struct(env); err != nil {
		return Envelope{}, &MalformedPayloadError{Reason: "missing required fields", Err: err}
	}
	return env, nil
}

// TeamKind tags the shape a team reference arrived in.
type TeamKind int

const (
	TeamAbsent TeamKind = iota
	TeamObject
	TeamID
)

// TeamRef is the canonical form of the several historical team shapes:
// an object with id and name, a bare string id, or nothing.
type TeamRef struct {
	Kind TeamKind
	ID   string
	Name string
}

// Project is the category an update belongs to.
type Project struct {
	ID    string
	Name  string
	URL   string
	Teams []string
	Team  TeamRef
}

// Event is a decoded project update delivery.
type Event struct {
	Action    Action
	UpdateID  string `validate:"required"`
	UpdatedAt string
	CreatedAt string
	Body      string
	Health    string
	Project   Project
	Author    string
	Timestamp int64
}

type rawProject struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	URL    string          `json:"url"`
	WebURL string          `json:"webUrl"`
	TeamID string          `json:"teamId"`
	Team   json.RawMessage `json:"team"`
	Teams  struct {
		Nodes []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"teams"`
}

type rawUpdate struct {
	ID        string          `json:"id"`
	SlugID    string          `json:"slugId"`
	Body      string          `json:"body"`
	Health    string          `json:"health"`
	UpdatedAt string          `json:"updatedAt"`
	CreatedAt string          `json:"createdAt"`
	URL       string          `json:"url"`
	ProjectID string          `json:"projectId"`
	TeamID    string          `json:"teamId"`
	Project   *rawProject     `json:"project"`
	Team      json.RawMessage `json:"team"`
	User      json.RawMessage `json:"user"`
	Creator   json.RawMessage `json:"creator"`
	Author    json.RawMessage `json:"author"`
}

// ParseEvent resolves the project update carried by env. The update may be
// nested under data.projectUpdate or be data itself.
func ParseEvent(env Envelope) (Event, error) {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		return Event{}, &MalformedPayloadError{Reason: "data is not an object"}
	}

	var outer struct {
		ProjectUpdate json.RawMessage `json:"projectUpdate"`
	}
	if err := json.Unmarshal(data, &outer); err != nil {
		return Event{}, &MalformedPayloadError{Reason: "invalid data", Err: err}
	}
	if nested := bytes.TrimSpace(outer.ProjectUpdate); len(nested) > 0 && nested[0] == '{' {
		data = nested
	}

	var u rawUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return Event{}, &MalformedPayloadError{Reason: "invalid project update", Err: err}
	}

	ev := Event{
		Action:    env.Action,
		UpdateID:  firstNonEmpty(u.ID, u.SlugID),
		UpdatedAt: u.UpdatedAt,
		CreatedAt: u.CreatedAt,
		Body:      u.Body,
		Health:    u.Health,
		Author:    resolveAuthor(u.User, u.Creator, u.Author),
		Timestamp: int64(env.WebhookTimestamp),
	}
	ev.Project = resolveProject(u)

	if err := getValidator().Struct(ev); err != nil {
		return Event{}, &MalformedPayloadError{Reason: "project update has no id", Err: err}
	}
	return ev, nil
}

func resolveProject(u rawUpdate) Project {
	p := Project{ID: u.ProjectID, URL: u.URL}
	if u.Project == nil {
		p.Team = resolveTeam(u.Team, u.TeamID)
		return p
	}

	rp := u.Project
	p.ID = firstNonEmpty(rp.ID, u.ProjectID)
	p.Name = rp.Name
	p.URL = firstNonEmpty(rp.URL, rp.WebURL, u.URL)
	for _, n := range rp.Teams.Nodes {
		if n.Name != "" {
			p.Teams = append(p.Teams, n.Name)
		}
	}
	p.Team = resolveTeam(rp.Team, rp.TeamID)
	if p.Team.Kind == TeamAbsent {
		p.Team = resolveTeam(u.Team, u.TeamID)
	}
	return p
}

func resolveTeam(raw json.RawMessage, teamID string) TeamRef {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 {
		switch raw[0] {
		case '"':
			var id string
			if json.Unmarshal(raw, &id) == nil && id != "" {
				return TeamRef{Kind: TeamID, ID: id}
			}
		case '{':
			var obj struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if json.Unmarshal(raw, &obj) == nil && (obj.ID != "" || obj.Name != "") {
				return TeamRef{Kind: TeamObject, ID: obj.ID, Name: obj.Name}
			}
		}
	}
	if teamID != "" {
		return TeamRef{Kind: TeamID, ID: teamID}
	}
	return TeamRef{Kind: TeamAbsent}
}

// resolveAuthor picks the first usable person among user, creator and author.
func resolveAuthor(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if raw[0] == '"' {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			continue
		}
		var person struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
			Email       string `json:"email"`
		}
		if json.Unmarshal(raw, &person) == nil {
			if name := firstNonEmpty(person.Name, person.DisplayName, person.Email); name != "" {
				return name
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
