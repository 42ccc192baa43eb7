// Package pipeline ties the sync engine together: it takes an authenticated,
// decoded project update and drives it through dedup, enrichment,
// conversion and the document store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/dedup"
	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/linear"
	"github.com/kalambet/lnsync/internal/metrics"
	"github.com/kalambet/lnsync/internal/period"
	"github.com/kalambet/lnsync/internal/replace"
	"github.com/kalambet/lnsync/internal/webhook"
)

// UnknownTeam is the grouping tag used when no team or project name is known.
const UnknownTeam = "Unknown Team"

// UnknownProject is the heading used for updates without a project name.
const UnknownProject = "Unknown Project"

// TeamLookup is the subset of the Linear client the processor enriches with.
type TeamLookup interface {
	TeamName(ctx context.Context, teamID string) (string, error)
	ProjectTeams(ctx context.Context, projectID string) ([]string, error)
	ProjectStatus(ctx context.Context, projectID string) (string, error)
}

// Result reports what Process did with one event.
type Result struct {
	Outcome   dedup.Outcome
	Reason    dedup.Reason
	PageID    string
	Team      string
	MultiTeam bool
	Path      blocks.Path
	Replaced  replace.Result
}

// Processor runs events through the sync engine.
type Processor struct {
	store     docstore.Store
	resolver  *dedup.Resolver
	converter *blocks.Converter
	replacer  *replace.Replacer
	teams     TeamLookup
	now       func() time.Time
	logger    *slog.Logger
}

// NewProcessor creates a Processor. teams may be nil, in which case grouping
// relies on what the payload carries.
func NewProcessor(store docstore.Store, converter *blocks.Converter, teams TeamLookup) *Processor {
	if converter == nil {
		converter = blocks.NewConverter(nil, "", 0)
	}
	return &Processor{
		store:     store,
		resolver:  dedup.NewResolver(store),
		converter: converter,
		replacer:  replace.NewReplacer(store, converter.Namespace()),
		teams:     teams,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Process handles one event:
//  1. Resolve the event against the stored record (create, update or skip)
//  2. Enrich with team grouping and project status (degrades on failure)
//  3. Convert the body into a marker-bounded block range
//  4. Create the record page, or replace the range and rewrite properties
//  5. Add the author as a contact (best-effort)
//
// Only store failures on the critical path are returned.
func (p *Processor) Process(ctx context.Context, ev webhook.Event) (Result, error) {
	// 1. Resolve
	d, err := p.resolver.Resolve(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: d.Outcome, Reason: d.Reason}
	if d.Found {
		res.PageID = d.Record.PageID
	}
	if d.Outcome == dedup.Skip {
		p.logger.Info("skipping delivery", "update_id", ev.UpdateID, "action", ev.Action, "reason", d.Reason)
		metrics.SyncOutcomes.WithLabelValues(string(ev.Action), "skipped").Inc()
		return res, nil
	}

	// A create redelivery never rewrites a range that is already there, so
	// check before spending oracle and Linear calls on it.
	if d.Outcome == dedup.Update && ev.Action == webhook.ActionCreate {
		found, err := p.replacer.HasRange(ctx, d.Record.PageID, ev.UpdateID)
		if err != nil {
			return res, err
		}
		if found {
			p.logger.Info("range already present, skipping create", "update_id", ev.UpdateID, "page_id", res.PageID)
			res.Outcome, res.Reason = dedup.Skip, dedup.ReasonDuplicate
			res.Replaced = replace.Result{Found: true, Skipped: true}
			metrics.SyncOutcomes.WithLabelValues(string(ev.Action), "skipped").Inc()
			return res, nil
		}
	}

	// 2. Enrich
	res.Team, res.MultiTeam = p.resolveTeam(ctx, ev.Project)
	status := p.projectStatus(ctx, ev.Project.ID)

	// 3. Convert
	name := ev.Project.Name
	if name == "" {
		name = UnknownProject
	}
	conv := p.converter.Convert(ctx, blocks.Update{
		ID:             ev.UpdateID,
		CategoryName:   name,
		CategoryURL:    ev.Project.URL,
		CategoryStatus: status,
		Health:         ev.Health,
		Body:           ev.Body,
	}, true)
	res.Path = conv.Path
	metrics.ConversionPath.WithLabelValues(string(conv.Path)).Inc()
	if n := conv.Dropped + conv.Skipped; n > 0 {
		metrics.OracleBlocksDropped.Add(float64(n))
	}

	// 4. Write
	rec := docstore.Record{
		UpdateID:     ev.UpdateID,
		CategoryID:   ev.Project.ID,
		CategoryName: name,
		Team:         res.Team,
		MultiTeam:    res.MultiTeam,
		UpdatedAt:    ev.UpdatedAt,
	}
	switch d.Outcome {
	case dedup.Create:
		rec.WeekEnding = period.Format(period.WeekEnding(p.now()))
		created, err := p.store.CreateRecord(ctx, rec, conv.Blocks)
		if err != nil {
			return res, fmt.Errorf("creating record for %s: %w", ev.UpdateID, err)
		}
		res.PageID = created.PageID
		p.logger.Info("created record", "update_id", ev.UpdateID, "page_id", created.PageID,
			"anchor", rec.WeekEnding, "path", conv.Path)
		metrics.SyncOutcomes.WithLabelValues(string(ev.Action), "created").Inc()

	case dedup.Update:
		mode := replace.ModeUpdate
		if ev.Action == webhook.ActionCreate {
			mode = replace.ModeCreate
		}
		rep, err := p.replacer.Apply(ctx, d.Record.PageID, ev.UpdateID, mode, conv.Blocks)
		res.Replaced = rep
		if err != nil {
			return res, err
		}
		if rep.Skipped {
			res.Outcome, res.Reason = dedup.Skip, dedup.ReasonDuplicate
			metrics.SyncOutcomes.WithLabelValues(string(ev.Action), "skipped").Inc()
			return res, nil
		}

		// The record stays in the period it was first written to.
		rec.PageID = d.Record.PageID
		rec.WeekEnding = d.Record.WeekEnding
		if rec.WeekEnding == "" {
			rec.WeekEnding = period.Format(period.WeekEnding(p.now()))
		}
		if err := p.store.UpdateRecord(ctx, rec); err != nil {
			return res, fmt.Errorf("updating record for %s: %w", ev.UpdateID, err)
		}
		p.logger.Info("updated record", "update_id", ev.UpdateID, "page_id", rec.PageID,
			"delta", d.Delta, "deleted", rep.Deleted, "attempted", rep.Attempted, "path", conv.Path)
		metrics.SyncOutcomes.WithLabelValues(string(ev.Action), "updated").Inc()
	}

	// 5. Contact
	if ev.Author != "" && res.PageID != "" {
		if err := p.store.AddContact(ctx, res.PageID, ev.Author); err != nil {
			p.logger.Warn("failed to add contact", "page_id", res.PageID, "contact", ev.Author, "error", err)
		}
	}

	return res, nil
}

// resolveTeam picks the grouping tag for a project. Sources are tried in
// order: team names in the payload, the payload team object, the project's
// teams from Linear, a bare team id looked up in Linear, the project name.
func (p *Processor) resolveTeam(ctx context.Context, proj webhook.Project) (string, bool) {
	names := nonEmpty(proj.Teams)

	if len(names) == 0 && proj.Team.Kind == webhook.TeamObject && proj.Team.Name != "" {
		names = []string{proj.Team.Name}
	}

	if len(names) == 0 && p.teams != nil && proj.ID != "" {
		found, err := p.teams.ProjectTeams(ctx, proj.ID)
		if err != nil {
			p.lookupFailed("project teams", proj.ID, err)
		}
		names = nonEmpty(found)
	}

	if len(names) == 0 && p.teams != nil && proj.Team.ID != "" {
		name, err := p.teams.TeamName(ctx, proj.Team.ID)
		if err != nil {
			p.lookupFailed("team name", proj.Team.ID, err)
		} else if name != "" {
			names = []string{name}
		}
	}

	switch {
	case len(names) > 0:
		return strings.Join(names, " & "), len(names) > 1
	case proj.Name != "":
		return proj.Name, false
	default:
		return UnknownTeam, false
	}
}

func (p *Processor) projectStatus(ctx context.Context, projectID string) string {
	if p.teams == nil || projectID == "" {
		return ""
	}
	status, err := p.teams.ProjectStatus(ctx, projectID)
	if err != nil {
		p.lookupFailed("project status", projectID, err)
		return ""
	}
	return status
}

func (p *Processor) lookupFailed(what, id string, err error) {
	if errors.Is(err, linear.ErrNoAPIKey) {
		p.logger.Debug("linear lookup skipped", "lookup", what, "id", id)
		return
	}
	p.logger.Warn("linear lookup failed", "lookup", what, "id", id, "error", err)
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
