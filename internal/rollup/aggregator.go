// Package rollup aggregates every record of a period into one rollup
// document, grouped by team.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/metrics"
	"github.com/kalambet/lnsync/internal/period"
)

const (
	// DefaultTitle prefixes rollup document titles.
	DefaultTitle = "Weekly Update"
	// MultiTeamBucket collects records that belong to more than one team.
	MultiTeamBucket = "Multiple Teams"

	fetchConcurrency = 4
)

// Summary reports the outcome of one aggregation.
type Summary struct {
	Anchor  string `json:"anchor"`
	Title   string `json:"title,omitempty"`
	PageID  string `json:"page_id,omitempty"`
	Records int    `json:"records"`
	Groups  int    `json:"groups"`
	Blocks  int    `json:"blocks"`
	// Partial is set when a fetch failed and the rollup was written from
	// what could be read.
	Partial bool `json:"partial"`
}

// Group is one team's records, ready to render.
type Group struct {
	Name    string
	Records []docstore.Record
}

// Aggregator builds rollup documents. At most one aggregation runs at a time;
// concurrent requests for the same anchor share a single run.
type Aggregator struct {
	store     docstore.Store
	title     string
	namespace string
	logger    *slog.Logger

	flight singleflight.Group
	mu     sync.Mutex
}

// NewAggregator creates an Aggregator writing rollups titled
// "<title> @<anchor>". Empty title and namespace use the defaults.
func NewAggregator(store docstore.Store, title, namespace string) *Aggregator {
	if title == "" {
		title = DefaultTitle
	}
	if namespace == "" {
		namespace = blocks.DefaultNamespace
	}
	return &Aggregator{
		store:     store,
		title:     title,
		namespace: namespace,
		logger:    slog.Default(),
	}
}

// Title returns the rollup document title for an anchor date.
func (a *Aggregator) Title(anchor string) string {
	return fmt.Sprintf("%s @%s", a.title, anchor)
}

// Run aggregates the period anchored at anchor. Zero records is a
// successful no-op. A failure to list any records at all is returned so the
// caller may retry.
func (a *Aggregator) Run(ctx context.Context, anchor time.Time) (Summary, error) {
	key := period.Format(anchor)
	v, err, shared := a.flight.Do(key, func() (any, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.run(ctx, key)
	})
	if shared {
		a.logger.Debug("joined in-flight rollup", "anchor", key)
	}
	return v.(Summary), err
}

func (a *Aggregator) run(ctx context.Context, anchor string) (Summary, error) {
	start := time.Now()
	defer func() { metrics.RollupDuration.Observe(time.Since(start).Seconds()) }()

	sum := Summary{Anchor: anchor}

	records, err := docstore.AllRecords(ctx, a.store, anchor)
	if err != nil {
		if len(records) == 0 {
			metrics.RollupRuns.WithLabelValues("error").Inc()
			return sum, fmt.Errorf("querying records for %s: %w", anchor, err)
		}
		a.logger.Warn("record query truncated", "anchor", anchor, "read", len(records), "error", err)
		sum.Partial = true
	}

	records = Dedupe(records)
	sum.Records = len(records)
	metrics.RollupRecords.Set(float64(len(records)))
	if len(records) == 0 {
		a.logger.Info("no records for period", "anchor", anchor)
		metrics.RollupRuns.WithLabelValues("empty").Inc()
		return sum, nil
	}

	groups := GroupRecords(records)
	sum.Groups = len(groups)

	members, partial := a.fetchMembers(ctx, groups)
	sum.Partial = sum.Partial || partial

	out := a.render(groups, members)
	sum.Blocks = len(out)

	sum.Title = a.Title(anchor)
	doc, err := a.rollupDoc(ctx, sum.Title, anchor)
	if err != nil {
		metrics.RollupRuns.WithLabelValues("error").Inc()
		return sum, err
	}
	sum.PageID = doc.PageID

	a.clear(ctx, doc.PageID)
	if err := a.store.AppendChildren(ctx, doc.PageID, out); err != nil {
		metrics.RollupRuns.WithLabelValues("error").Inc()
		return sum, fmt.Errorf("writing rollup %s: %w", sum.Title, err)
	}

	result := "success"
	if sum.Partial {
		result = "partial"
		a.logger.Warn("rollup written from partial results", "anchor", anchor, "records", sum.Records)
	}
	metrics.RollupRuns.WithLabelValues(result).Inc()
	a.logger.Info("rollup written", "anchor", anchor, "page_id", doc.PageID,
		"records", sum.Records, "groups", sum.Groups, "blocks", sum.Blocks)
	return sum, nil
}

// Dedupe keeps one record per category, identified by id or, when absent,
// by name. The record with the greatest last-edited value wins.
func Dedupe(records []docstore.Record) []docstore.Record {
	index := make(map[string]int, len(records))
	var out []docstore.Record
	for _, r := range records {
		key := "id:" + r.CategoryID
		if r.CategoryID == "" {
			key = "name:" + r.CategoryName
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if r.LastEdited > out[i].LastEdited {
			out[i] = r
		}
	}
	return out
}

// GroupRecords buckets records by team. Multi-team records go to
// MultiTeamBucket, which sorts after every other group. Members are ordered
// by last-edited ascending.
func GroupRecords(records []docstore.Record) []Group {
	byName := map[string][]docstore.Record{}
	for _, r := range records {
		name := r.Team
		if r.MultiTeam {
			name = MultiTeamBucket
		}
		byName[name] = append(byName[name], r)
	}

	groups := make([]Group, 0, len(byName))
	for name, rs := range byName {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].LastEdited < rs[j].LastEdited })
		groups = append(groups, Group{Name: name, Records: rs})
	}
	sort.Slice(groups, func(i, j int) bool {
		gi, gj := groups[i].Name, groups[j].Name
		if (gi == MultiTeamBucket) != (gj == MultiTeamBucket) {
			return gj == MultiTeamBucket
		}
		return gi < gj
	})
	return groups
}

// fetchMembers reads every member page's children, keyed by page id. A
// failed read keeps whatever was read before the failure.
func (a *Aggregator) fetchMembers(ctx context.Context, groups []Group) (map[string][]blocks.Block, bool) {
	var pages []string
	for _, g := range groups {
		for _, r := range g.Records {
			pages = append(pages, r.PageID)
		}
	}

	results := make([][]blocks.Block, len(pages))
	failed := make([]bool, len(pages))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, pageID := range pages {
		g.Go(func() error {
			children, err := docstore.AllChildren(ctx, a.store, pageID)
			if err != nil {
				a.logger.Warn("failed to read record page", "page_id", pageID, "read", len(children), "error", err)
				failed[i] = true
			}
			results[i] = children
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]blocks.Block, len(pages))
	partial := false
	for i, pageID := range pages {
		out[pageID] = results[i]
		partial = partial || failed[i]
	}
	return out, partial
}

func (a *Aggregator) render(groups []Group, members map[string][]blocks.Block) []blocks.Block {
	var out []blocks.Block
	for _, g := range groups {
		out = append(out, blocks.Heading(1, blocks.Plain(g.Name)))
		for _, r := range g.Records {
			cleaned, stats := Clean(members[r.PageID], a.namespace)
			if stats.Unsupported > 0 || stats.Flattened > 0 {
				a.logger.Warn("record page has blocks the rollup cannot carry", "page_id", r.PageID,
					"unsupported", stats.Unsupported, "flattened", stats.Flattened)
			}
			out = append(out, cleaned...)
		}
	}
	return out
}

// CleanStats counts what Clean could not copy verbatim.
type CleanStats struct {
	// Unsupported blocks were dropped: their type cannot be written.
	Unsupported int
	// Flattened blocks had nested children, which are not copied.
	Flattened int
}

// Clean prepares a member's blocks for the rollup: dividers and block types
// that cannot be written are removed, spans carrying an end marker are
// stripped, and text blocks left empty are dropped. Block ids are cleared.
//
// Only top-level blocks are copied. A block with nested children keeps its
// own content and loses the children.
func Clean(bs []blocks.Block, namespace string) ([]blocks.Block, CleanStats) {
	literal := namespace + ":"
	var out []blocks.Block
	var stats CleanStats
	for _, b := range bs {
		if b.Type == blocks.TypeDivider {
			continue
		}
		if !b.Type.Supported() {
			stats.Unsupported++
			continue
		}
		if b.HasChildren {
			stats.Flattened++
		}
		b = b.WithoutID()
		if !b.Type.TextBearing() {
			out = append(out, b)
			continue
		}
		var spans []blocks.RichText
		for _, rt := range b.RichText {
			if strings.Contains(rt.Text.Content, literal) {
				continue
			}
			spans = append(spans, rt)
		}
		if len(spans) == 0 {
			continue
		}
		b.RichText = spans
		out = append(out, b)
	}
	return out, stats
}

func (a *Aggregator) rollupDoc(ctx context.Context, title, anchor string) (docstore.Rollup, error) {
	doc, err := a.store.FindRollup(ctx, title, anchor)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return docstore.Rollup{}, fmt.Errorf("finding rollup %q: %w", title, err)
	}
	doc, err = a.store.CreateRollup(ctx, title, anchor)
	if err != nil {
		return docstore.Rollup{}, fmt.Errorf("creating rollup %q: %w", title, err)
	}
	a.logger.Info("created rollup document", "title", title, "page_id", doc.PageID)
	return doc, nil
}

// clear deletes every child of the rollup page. Failures are logged; the
// fresh content is appended regardless.
func (a *Aggregator) clear(ctx context.Context, pageID string) {
	children, err := docstore.AllChildren(ctx, a.store, pageID)
	if err != nil {
		a.logger.Warn("failed to list rollup children", "page_id", pageID, "error", err)
	}
	failed := 0
	for _, b := range children {
		if err := a.store.DeleteBlock(ctx, b.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			failed++
		}
	}
	if failed > 0 {
		a.logger.Warn("failed to clear rollup blocks", "page_id", pageID, "failed", failed, "total", len(children))
	}
}
