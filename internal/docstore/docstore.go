// Package docstore defines the document-store contract shared by the Notion
// client and the local SQLite store.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/lnsync/internal/blocks"
)

// ErrNotFound is returned when a requested record, page or rollup does not exist.
var ErrNotFound = errors.New("not found")

// IOError is a failed call to the external store. It is the transient error
// class: the event path surfaces it, the rollup path retries it.
type IOError struct {
	Op     string
	Status int
	Err    error
}

func (e *IOError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsTransient reports whether err came from a failed store call.
func IsTransient(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// Record is the per-update document. UpdatedAt is kept exactly as received;
// LastEdited is maintained by the store and is fixed-width ISO-8601.
type Record struct {
	PageID       string
	UpdateID     string
	CategoryID   string
	CategoryName string
	Team         string
	MultiTeam    bool
	WeekEnding   string
	UpdatedAt    string
	LastEdited   string
}

// RecordPage is one page of a record query.
type RecordPage struct {
	Records    []Record
	HasMore    bool
	NextCursor string
}

// BlockPage is one page of a page's children.
type BlockPage struct {
	Blocks     []blocks.Block
	HasMore    bool
	NextCursor string
}

// Rollup identifies the rolled-up document of one period.
type Rollup struct {
	PageID     string
	Title      string
	WeekEnding string
}

// PageSize is the number of items requested per page.
const PageSize = 100

// Blocks is the block-level part of the store.
type Blocks interface {
	Children(ctx context.Context, pageID, cursor string) (BlockPage, error)
	AppendChildren(ctx context.Context, pageID string, bs []blocks.Block) error
	DeleteBlock(ctx context.Context, blockID string) error
}

// Records is the per-update record collection.
type Records interface {
	FindRecord(ctx context.Context, updateID string) (Record, error)
	CreateRecord(ctx context.Context, rec Record, children []blocks.Block) (Record, error)
	UpdateRecord(ctx context.Context, rec Record) error
	QueryRecords(ctx context.Context, weekEnding, cursor string) (RecordPage, error)
	AddContact(ctx context.Context, pageID, name string) error
}

// Rollups is the rollup collection.
type Rollups interface {
	FindRollup(ctx context.Context, title, weekEnding string) (Rollup, error)
	CreateRollup(ctx context.Context, title, weekEnding string) (Rollup, error)
}

// Store is everything the sync engine needs from a document store.
type Store interface {
	Blocks
	Records
	Rollups
}

// AllChildren follows cursors until every child of pageID has been read.
// On a failed page it returns what was read so far along with the error.
func AllChildren(ctx context.Context, s Blocks, pageID string) ([]blocks.Block, error) {
	var all []blocks.Block
	cursor := ""
	for {
		page, err := s.Children(ctx, pageID, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, page.Blocks...)
		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// AllRecords follows cursors until every record for weekEnding has been read.
// On a failed page it returns what was read so far along with the error.
func AllRecords(ctx context.Context, s Records, weekEnding string) ([]Record, error) {
	var all []Record
	cursor := ""
	for {
		page, err := s.QueryRecords(ctx, weekEnding, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, page.Records...)
		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
