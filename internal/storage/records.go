package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
)

type recordRow struct {
	Seq          int64  `db:"seq"`
	PageID       string `db:"page_id"`
	UpdateID     string `db:"update_id"`
	CategoryID   string `db:"category_id"`
	CategoryName string `db:"category_name"`
	Team         string `db:"team"`
	MultiTeam    bool   `db:"multi_team"`
	WeekEnding   string `db:"week_ending"`
	UpdatedAt    string `db:"updated_at"`
	CreatedAt    string `db:"created_at"`
	LastEdited   string `db:"last_edited"`
}

func (r recordRow) record() docstore.Record {
	return docstore.Record{
		PageID:       r.PageID,
		UpdateID:     r.UpdateID,
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName,
		Team:         r.Team,
		MultiTeam:    r.MultiTeam,
		WeekEnding:   r.WeekEnding,
		UpdatedAt:    r.UpdatedAt,
		LastEdited:   r.LastEdited,
	}
}

func rowFromRecord(rec docstore.Record) recordRow {
	return recordRow{
		PageID:       rec.PageID,
		UpdateID:     rec.UpdateID,
		CategoryID:   rec.CategoryID,
		CategoryName: rec.CategoryName,
		Team:         rec.Team,
		MultiTeam:    rec.MultiTeam,
		WeekEnding:   rec.WeekEnding,
		UpdatedAt:    rec.UpdatedAt,
	}
}

const recordColumns = `rowid AS seq, page_id, update_id, category_id, category_name, team,
	multi_team, week_ending, updated_at, created_at, last_edited`

// FindRecord returns the record for updateID or docstore.ErrNotFound.
func (s *Store) FindRecord(ctx context.Context, updateID string) (docstore.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, "SELECT "+recordColumns+" FROM records WHERE update_id = ?", updateID)
	if err != nil {
		return docstore.Record{}, wrap("find record "+updateID, err)
	}
	return row.record(), nil
}

// CreateRecord inserts rec and its children in one transaction.
func (s *Store) CreateRecord(ctx context.Context, rec docstore.Record, children []blocks.Block) (docstore.Record, error) {
	row := rowFromRecord(rec)
	row.PageID = uuid.NewString()
	row.CreatedAt = s.timestamp()
	row.LastEdited = row.CreatedAt

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return docstore.Record{}, wrap("create record", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO records (page_id, update_id, category_id, category_name, team, multi_team,
			week_ending, updated_at, created_at, last_edited)
		VALUES (:page_id, :update_id, :category_id, :category_name, :team, :multi_team,
			:week_ending, :updated_at, :created_at, :last_edited)`, row)
	if err != nil {
		return docstore.Record{}, wrap("create record", err)
	}
	if err := insertBlocks(ctx, tx, row.PageID, 0, children); err != nil {
		return docstore.Record{}, wrap("create record", err)
	}
	if err := tx.Commit(); err != nil {
		return docstore.Record{}, wrap("create record", err)
	}
	return row.record(), nil
}

// UpdateRecord rewrites the properties of rec.PageID and bumps last_edited.
func (s *Store) UpdateRecord(ctx context.Context, rec docstore.Record) error {
	row := rowFromRecord(rec)
	row.LastEdited = s.timestamp()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE records SET update_id = :update_id, category_id = :category_id,
			category_name = :category_name, team = :team, multi_team = :multi_team,
			week_ending = :week_ending, updated_at = :updated_at, last_edited = :last_edited
		WHERE page_id = :page_id`, row)
	if err != nil {
		return wrap("update record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update record %s: %w", rec.PageID, docstore.ErrNotFound)
	}
	return nil
}

// QueryRecords returns one page of the records anchored on weekEnding in
// insertion order. The cursor is the last seen row sequence.
func (s *Store) QueryRecords(ctx context.Context, weekEnding, cursor string) (docstore.RecordPage, error) {
	var after int64
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return docstore.RecordPage{}, fmt.Errorf("query records: invalid cursor %q", cursor)
		}
		after = v
	}

	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, "SELECT "+recordColumns+`
		FROM records WHERE week_ending = ? AND rowid > ?
		ORDER BY rowid LIMIT ?`, weekEnding, after, docstore.PageSize+1)
	if err != nil {
		return docstore.RecordPage{}, wrap("query records", err)
	}

	var page docstore.RecordPage
	if len(rows) > docstore.PageSize {
		rows = rows[:docstore.PageSize]
		page.HasMore = true
		page.NextCursor = strconv.FormatInt(rows[len(rows)-1].Seq, 10)
	}
	for _, r := range rows {
		page.Records = append(page.Records, r.record())
	}
	return page, nil
}

// AddContact records name against pageID once.
func (s *Store) AddContact(ctx context.Context, pageID, name string) error {
	if name == "" {
		return nil
	}
	var exists int
	if err := s.db.GetContext(ctx, &exists, "SELECT COUNT(*) FROM records WHERE page_id = ?", pageID); err != nil {
		return wrap("add contact", err)
	}
	if exists == 0 {
		return fmt.Errorf("add contact %s: %w", pageID, docstore.ErrNotFound)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO contacts (page_id, name, seq)
		VALUES (?, ?, (SELECT COUNT(*) FROM contacts WHERE page_id = ?))`, pageID, name, pageID)
	return wrap("add contact", err)
}

// Contacts returns the contacts of pageID in the order they were added.
func (s *Store) Contacts(ctx context.Context, pageID string) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, "SELECT name FROM contacts WHERE page_id = ? ORDER BY seq", pageID)
	return names, wrap("list contacts", err)
}
