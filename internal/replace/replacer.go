// Package replace locates the block range written for an update on a page
// and swaps it for a freshly rendered one.
package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/metrics"
)

// Range is an inclusive span of child indices: the opening divider through
// the end marker.
type Range struct {
	Start int
	End   int
}

// Len is the number of blocks in r.
func (r Range) Len() int { return r.End - r.Start + 1 }

// FindRange locates the range closed by the first paragraph carrying
// marker. The opening is the nearest divider before it that is immediately
// followed by a heading_2.
func FindRange(children []blocks.Block, marker string) (Range, bool) {
	end := -1
	for i, b := range children {
		if blocks.HasMarker(b, marker) {
			end = i
			break
		}
	}
	if end < 0 {
		return Range{}, false
	}
	for i := end - 1; i >= 0; i-- {
		if blocks.IsRangeStart(children, i) {
			return Range{Start: i, End: end}, true
		}
	}
	return Range{}, false
}

// Mode selects how an existing range is treated.
type Mode int

const (
	// ModeCreate leaves an existing range alone.
	ModeCreate Mode = iota
	// ModeUpdate deletes an existing range before appending.
	ModeUpdate
)

// Result reports what Apply did.
type Result struct {
	Found     bool
	Skipped   bool
	Attempted int
	Deleted   int
	Appended  int
}

// Replacer rewrites update ranges on pages.
type Replacer struct {
	store     docstore.Blocks
	namespace string
	logger    *slog.Logger
}

// NewReplacer creates a Replacer for markers in namespace.
func NewReplacer(store docstore.Blocks, namespace string) *Replacer {
	if namespace == "" {
		namespace = blocks.DefaultNamespace
	}
	return &Replacer{store: store, namespace: namespace, logger: slog.Default()}
}

// HasRange reports whether pageID already carries the range of updateID.
func (r *Replacer) HasRange(ctx context.Context, pageID, updateID string) (bool, error) {
	children, err := docstore.AllChildren(ctx, r.store, pageID)
	if err != nil {
		return false, fmt.Errorf("reading page %s: %w", pageID, err)
	}
	_, found := FindRange(children, blocks.Marker(r.namespace, updateID))
	return found, nil
}

// Apply writes bs for updateID on pageID. Deletion of the old range is
// best-effort; the new blocks are appended regardless of how many old
// blocks could be removed.
func (r *Replacer) Apply(ctx context.Context, pageID, updateID string, mode Mode, bs []blocks.Block) (Result, error) {
	children, err := docstore.AllChildren(ctx, r.store, pageID)
	if err != nil {
		return Result{}, fmt.Errorf("reading page %s: %w", pageID, err)
	}

	var res Result
	rng, found := FindRange(children, blocks.Marker(r.namespace, updateID))
	res.Found = found

	if found && mode == ModeCreate {
		r.logger.Info("range already present, skipping", "page_id", pageID, "update_id", updateID)
		res.Skipped = true
		return res, nil
	}

	if found {
		for _, b := range children[rng.Start : rng.End+1] {
			res.Attempted++
			err := r.store.DeleteBlock(ctx, b.ID)
			if err == nil || errors.Is(err, docstore.ErrNotFound) {
				res.Deleted++
				metrics.BlocksDeleted.WithLabelValues("deleted").Inc()
				continue
			}
			metrics.BlocksDeleted.WithLabelValues("failed").Inc()
			r.logger.Warn("failed to delete block", "page_id", pageID, "block_id", b.ID, "error", err)
		}
		if res.Deleted < res.Attempted {
			r.logger.Warn("partial range delete", "update_id", updateID,
				"deleted", res.Deleted, "attempted", res.Attempted)
		}
	}

	if err := r.store.AppendChildren(ctx, pageID, bs); err != nil {
		return res, fmt.Errorf("appending blocks to %s: %w", pageID, err)
	}
	res.Appended = len(bs)
	return res, nil
}
