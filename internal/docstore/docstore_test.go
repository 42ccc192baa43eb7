package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/kalambet/lnsync/internal/blocks"
)

type pagedBlocks struct {
	pages   [][]blocks.Block
	failAt  int
	cursors []string
}

func (p *pagedBlocks) Children(ctx context.Context, pageID, cursor string) (BlockPage, error) {
	p.cursors = append(p.cursors, cursor)
	i := 0
	if cursor != "" {
		i, _ = strconv.Atoi(cursor)
	}
	if p.failAt > 0 && i == p.failAt {
		return BlockPage{}, &IOError{Op: "list children", Status: 502, Err: errors.New("bad gateway")}
	}
	page := BlockPage{Blocks: p.pages[i]}
	if i+1 < len(p.pages) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(i + 1)
	}
	return page, nil
}

func (p *pagedBlocks) AppendChildren(ctx context.Context, pageID string, bs []blocks.Block) error {
	return nil
}

func (p *pagedBlocks) DeleteBlock(ctx context.Context, blockID string) error { return nil }

func TestAllChildren_FollowsCursor(t *testing.T) {
	s := &pagedBlocks{pages: [][]blocks.Block{
		{blocks.Divider(), blocks.Divider()},
		{blocks.Paragraph()},
		{blocks.Divider()},
	}}

	got, err := AllChildren(context.Background(), s, "page")
	if err != nil {
		t.Fatalf("AllChildren: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d blocks, want 4", len(got))
	}
	want := []string{"", "1", "2"}
	if fmt.Sprint(s.cursors) != fmt.Sprint(want) {
		t.Errorf("cursors = %v, want %v", s.cursors, want)
	}
}

func TestAllChildren_PartialOnError(t *testing.T) {
	s := &pagedBlocks{
		pages:  [][]blocks.Block{{blocks.Divider()}, {blocks.Divider()}},
		failAt: 1,
	}

	got, err := AllChildren(context.Background(), s, "page")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("IsTransient(%v) = false", err)
	}
	if len(got) != 1 {
		t.Errorf("partial result has %d blocks, want 1", len(got))
	}
}

func TestIOError_Message(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &IOError{Op: "query", Status: 500, Err: errors.New("down")})
	if got := err.Error(); got != "wrapped: query: status 500: down" {
		t.Errorf("Error() = %q", got)
	}
	if IsTransient(ErrNotFound) {
		t.Error("ErrNotFound is not transient")
	}
}
