package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
)

type blockRow struct {
	ID       string `db:"id"`
	PageID   string `db:"page_id"`
	Position int64  `db:"position"`
	Type     string `db:"type"`
	Body     string `db:"body"`
}

func insertBlocks(ctx context.Context, tx *sqlx.Tx, pageID string, start int64, bs []blocks.Block) error {
	for i, b := range bs {
		body, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encoding block %d: %w", i, err)
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO blocks (id, page_id, position, type, body)
			VALUES (:id, :page_id, :position, :type, :body)`, blockRow{
			ID:       uuid.NewString(),
			PageID:   pageID,
			Position: start + int64(i),
			Type:     string(b.Type),
			Body:     string(body),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Children returns one page of the children of pageID. The cursor is the
// position of the last block returned.
func (s *Store) Children(ctx context.Context, pageID, cursor string) (docstore.BlockPage, error) {
	after := int64(-1)
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return docstore.BlockPage{}, fmt.Errorf("list children: invalid cursor %q", cursor)
		}
		after = v
	}

	var rows []blockRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, page_id, position, type, body FROM blocks
		WHERE page_id = ? AND position > ?
		ORDER BY position LIMIT ?`, pageID, after, docstore.PageSize+1)
	if err != nil {
		return docstore.BlockPage{}, wrap("list children", err)
	}

	var page docstore.BlockPage
	if len(rows) > docstore.PageSize {
		rows = rows[:docstore.PageSize]
		page.HasMore = true
		page.NextCursor = strconv.FormatInt(rows[len(rows)-1].Position, 10)
	}
	for _, r := range rows {
		var b blocks.Block
		if err := json.Unmarshal([]byte(r.Body), &b); err != nil {
			return page, wrap("list children", fmt.Errorf("decoding block %s: %w", r.ID, err))
		}
		b.ID = r.ID
		page.Blocks = append(page.Blocks, b)
	}
	return page, nil
}

// AppendChildren appends bs after the last child of pageID.
func (s *Store) AppendChildren(ctx context.Context, pageID string, bs []blocks.Block) error {
	if len(bs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("append children", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.GetContext(ctx, &last, "SELECT MAX(position) FROM blocks WHERE page_id = ?", pageID); err != nil {
		return wrap("append children", err)
	}
	start := int64(0)
	if last.Valid {
		start = last.Int64 + 1
	}
	if err := insertBlocks(ctx, tx, pageID, start, bs); err != nil {
		return wrap("append children", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE records SET last_edited = ? WHERE page_id = ?", s.timestamp(), pageID); err != nil {
		return wrap("append children", err)
	}
	return wrap("append children", tx.Commit())
}

// DeleteBlock removes a single block.
func (s *Store) DeleteBlock(ctx context.Context, blockID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blocks WHERE id = ?", blockID)
	if err != nil {
		return wrap("delete block", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete block %s: %w", blockID, docstore.ErrNotFound)
	}
	return nil
}
