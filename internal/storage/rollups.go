package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalambet/lnsync/internal/docstore"
)

type rollupRow struct {
	PageID     string `db:"page_id"`
	Title      string `db:"title"`
	WeekEnding string `db:"week_ending"`
	CreatedAt  string `db:"created_at"`
}

// FindRollup returns the rollup titled title for weekEnding.
func (s *Store) FindRollup(ctx context.Context, title, weekEnding string) (docstore.Rollup, error) {
	var row rollupRow
	err := s.db.GetContext(ctx, &row, `
		SELECT page_id, title, week_ending, created_at FROM rollups
		WHERE title = ? AND week_ending = ?`, title, weekEnding)
	if err != nil {
		return docstore.Rollup{}, wrap("find rollup", err)
	}
	return docstore.Rollup{PageID: row.PageID, Title: row.Title, WeekEnding: row.WeekEnding}, nil
}

// CreateRollup creates an empty rollup.
func (s *Store) CreateRollup(ctx context.Context, title, weekEnding string) (docstore.Rollup, error) {
	row := rollupRow{
		PageID:     uuid.NewString(),
		Title:      title,
		WeekEnding: weekEnding,
		CreatedAt:  s.timestamp(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO rollups (page_id, title, week_ending, created_at)
		VALUES (:page_id, :title, :week_ending, :created_at)`, row)
	if err != nil {
		return docstore.Rollup{}, wrap("create rollup", err)
	}
	return docstore.Rollup{PageID: row.PageID, Title: title, WeekEnding: weekEnding}, nil
}
