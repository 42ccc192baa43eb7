package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/webhook"
)

func TestDecide(t *testing.T) {
	const base = "2025-01-10T10:00:00.000Z"

	tests := []struct {
		name      string
		action    webhook.Action
		found     bool
		stored    string
		incoming  string
		bodyEmpty bool
		want      Outcome
		reason    Reason
	}{
		{"no record", webhook.ActionCreate, false, "", base, false, Create, ReasonNew},
		{"update with no record creates", webhook.ActionUpdate, false, "", base, false, Create, ReasonNew},
		{"exact replay", webhook.ActionCreate, true, base, base, false, Skip, ReasonDuplicate},
		{"exact replay as update", webhook.ActionUpdate, true, base, base, false, Skip, ReasonDuplicate},
		{"one second newer", webhook.ActionUpdate, true, base, "2025-01-10T10:00:01.000Z", false, Update, ReasonNewer},
		{"one millisecond newer", webhook.ActionUpdate, true, base, "2025-01-10T10:00:00.001Z", false, Update, ReasonNewer},
		{"older", webhook.ActionUpdate, true, base, "2025-01-10T09:59:59.000Z", false, Skip, ReasonStale},
		{"same instant different spelling", webhook.ActionUpdate, true, base, "2025-01-10T10:00:00+00:00", false, Skip, ReasonStale},
		{"offset form newer", webhook.ActionUpdate, true, base, "2025-01-10T12:00:01+02:00", false, Update, ReasonNewer},
		{"unparseable update", webhook.ActionUpdate, true, base, "yesterday", false, Update, ReasonUnparseable},
		{"unparseable stored", webhook.ActionUpdate, true, "", base, false, Update, ReasonUnparseable},
		{"unparseable create is duplicate", webhook.ActionCreate, true, base, "yesterday", false, Skip, ReasonDuplicate},
		{"create empty body", webhook.ActionCreate, false, "", base, true, Skip, ReasonEmptyBody},
		{"update empty body proceeds", webhook.ActionUpdate, true, base, "2025-01-10T10:00:05.000Z", true, Update, ReasonNewer},
		{"create newer on existing", webhook.ActionCreate, true, base, "2025-01-10T10:00:01.000Z", false, Update, ReasonNewer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, _ := Decide(tt.action, tt.found, tt.stored, tt.incoming, tt.bodyEmpty)
			if got != tt.want || reason != tt.reason {
				t.Errorf("Decide() = %s (%s), want %s (%s)", got, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestDecide_ByteEqualBeforeParse(t *testing.T) {
	// Equal garbage must be a duplicate, not an unparseable update.
	got, reason, _ := Decide(webhook.ActionUpdate, true, "not-a-time", "not-a-time", false)
	if got != Skip || reason != ReasonDuplicate {
		t.Errorf("Decide() = %s (%s), want skip (duplicate)", got, reason)
	}
}

func TestParseInstant(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-10T10:00:00Z", time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-01-10T10:00:00.123Z", time.Date(2025, 1, 10, 10, 0, 0, 123e6, time.UTC)},
		{"2025-01-10T12:00:00+02:00", time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-01-10T10:00:00", time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseInstant(tt.in)
		if err != nil {
			t.Errorf("ParseInstant(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseInstant(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseInstant(""); err == nil {
		t.Error("ParseInstant(\"\") should fail")
	}
}

type mockFinder struct {
	rec docstore.Record
	err error
}

func (m *mockFinder) FindRecord(ctx context.Context, updateID string) (docstore.Record, error) {
	return m.rec, m.err
}

func TestResolver_Resolve(t *testing.T) {
	ev := webhook.Event{Action: webhook.ActionUpdate, UpdateID: "U1", UpdatedAt: "2025-01-10T10:00:01.000Z", Body: "x"}

	r := NewResolver(&mockFinder{err: docstore.ErrNotFound})
	d, err := r.Resolve(context.Background(), ev)
	if err != nil || d.Outcome != Create || d.Found {
		t.Errorf("not found: %+v, %v", d, err)
	}

	stored := docstore.Record{PageID: "p", UpdateID: "U1", UpdatedAt: "2025-01-10T10:00:00.000Z"}
	r = NewResolver(&mockFinder{rec: stored})
	d, err = r.Resolve(context.Background(), ev)
	if err != nil || d.Outcome != Update || !d.Found || d.Record.PageID != "p" || d.Delta != time.Second {
		t.Errorf("newer: %+v, %v", d, err)
	}

	ioErr := &docstore.IOError{Op: "find record", Status: 502, Err: errors.New("bad gateway")}
	r = NewResolver(&mockFinder{err: ioErr})
	if _, err := r.Resolve(context.Background(), ev); !docstore.IsTransient(err) {
		t.Errorf("store failure: err = %v, want transient", err)
	}
}

func TestResolver_WhitespaceBodyIsEmpty(t *testing.T) {
	r := NewResolver(&mockFinder{err: docstore.ErrNotFound})
	d, err := r.Resolve(context.Background(), webhook.Event{Action: webhook.ActionCreate, UpdateID: "U1", Body: " \n\t"})
	if err != nil || d.Outcome != Skip || d.Reason != ReasonEmptyBody {
		t.Errorf("Resolve = %+v, %v", d, err)
	}
}
