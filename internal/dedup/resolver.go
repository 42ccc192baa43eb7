// Package dedup decides whether a delivery is new, a duplicate, or an edit
// of an update that was already synced.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/webhook"
)

// Outcome is what the engine should do with a delivery.
type Outcome string

const (
	Create Outcome = "create"
	Update Outcome = "update"
	Skip   Outcome = "skip"
)

// Reason explains an outcome in logs and responses.
type Reason string

const (
	ReasonNew         Reason = "new"
	ReasonDuplicate   Reason = "duplicate"
	ReasonStale       Reason = "not newer"
	ReasonNewer       Reason = "newer"
	ReasonUnparseable Reason = "unparseable timestamp"
	ReasonEmptyBody   Reason = "empty body"
)

// Decision is the resolver's verdict for one event.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Record is the stored record when Found is set.
	Record docstore.Record
	Found  bool
	// Delta is incoming minus stored updatedAt when both parsed.
	Delta time.Duration
}

// Decide is the pure decision table. stored is ignored when found is false.
func Decide(action webhook.Action, found bool, stored, incoming string, bodyEmpty bool) (Outcome, Reason, time.Duration) {
	if action == webhook.ActionCreate && bodyEmpty {
		return Skip, ReasonEmptyBody, 0
	}
	if !found {
		return Create, ReasonNew, 0
	}
	// Byte equality first: identical strings never reach the parser.
	if stored == incoming {
		return Skip, ReasonDuplicate, 0
	}

	storedAt, err1 := ParseInstant(stored)
	incomingAt, err2 := ParseInstant(incoming)
	if err1 != nil || err2 != nil {
		if action == webhook.ActionCreate {
			return Skip, ReasonDuplicate, 0
		}
		return Update, ReasonUnparseable, 0
	}

	delta := incomingAt.Sub(storedAt)
	if delta <= 0 {
		return Skip, ReasonStale, delta
	}
	return Update, ReasonNewer, delta
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

// ParseInstant parses an ISO-8601 timestamp. A trailing "Z" is read as
// +00:00; a value without an offset is taken as UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Finder looks up the record of an update.
type Finder interface {
	FindRecord(ctx context.Context, updateID string) (docstore.Record, error)
}

// Resolver applies Decide to the stored state of an event's update.
type Resolver struct {
	records Finder
	logger  *slog.Logger
}

// NewResolver creates a Resolver reading from records.
func NewResolver(records Finder) *Resolver {
	return &Resolver{records: records, logger: slog.Default()}
}

// Resolve looks up ev's record and decides what to do. Store failures other
// than not-found are returned.
func (r *Resolver) Resolve(ctx context.Context, ev webhook.Event) (Decision, error) {
	rec, err := r.records.FindRecord(ctx, ev.UpdateID)
	found := err == nil
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return Decision{}, fmt.Errorf("looking up record: %w", err)
	}

	bodyEmpty := strings.TrimSpace(ev.Body) == ""
	outcome, reason, delta := Decide(ev.Action, found, rec.UpdatedAt, ev.UpdatedAt, bodyEmpty)

	if outcome == Update && bodyEmpty {
		r.logger.Warn("update has an empty body, replacing content with heading only", "update_id", ev.UpdateID)
	}
	if reason == ReasonUnparseable {
		r.logger.Warn("could not compare timestamps, treating as update",
			"update_id", ev.UpdateID, "stored", rec.UpdatedAt, "incoming", ev.UpdatedAt)
	}

	r.logger.Debug("resolved delivery", "update_id", ev.UpdateID, "action", ev.Action,
		"outcome", outcome, "reason", reason, "delta", delta)

	return Decision{Outcome: outcome, Reason: reason, Record: rec, Found: found, Delta: delta}, nil
}
