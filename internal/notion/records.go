package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
)

// Property names of the record and rollup databases.
const (
	PropName       = "Name"
	PropProjectID  = "Project ID"
	PropTeam       = "Team"
	PropWeekEnding = "Week ending on"
	PropUpdateID   = "Update ID"
	PropUpdatedAt  = "Updated At"
	PropMultiTeam  = "Multi Team"
	PropContact    = "Contact"
)

type page struct {
	ID             string              `json:"id"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]property `json:"properties"`
}

type property struct {
	Type        string            `json:"type"`
	Title       []blocks.RichText `json:"title"`
	RichText    []blocks.RichText `json:"rich_text"`
	Date        *dateValue        `json:"date"`
	Checkbox    bool              `json:"checkbox"`
	MultiSelect []selectOption    `json:"multi_select"`
	People      []user            `json:"people"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectOption struct {
	Name string `json:"name"`
}

func (p property) text() string {
	spans := p.RichText
	if p.Type == "title" || (p.Type == "" && len(spans) == 0) {
		spans = p.Title
	}
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text.Content)
	}
	return sb.String()
}

func (p property) date() string {
	if p.Date == nil {
		return ""
	}
	// Date-only properties come back as YYYY-MM-DD; keep the date part of
	// anything longer.
	if len(p.Date.Start) > 10 {
		return p.Date.Start[:10]
	}
	return p.Date.Start
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

func textValue(s string) []map[string]any {
	if s == "" {
		return []map[string]any{}
	}
	return []map[string]any{{"type": "text", "text": map[string]any{"content": s}}}
}

func titleProp(s string) map[string]any    { return map[string]any{"title": textValue(s)} }
func richTextProp(s string) map[string]any { return map[string]any{"rich_text": textValue(s)} }
func checkboxProp(b bool) map[string]any   { return map[string]any{"checkbox": b} }

func dateProp(d string) map[string]any {
	if d == "" {
		return map[string]any{"date": nil}
	}
	return map[string]any{"date": map[string]any{"start": d}}
}

func recordProperties(rec docstore.Record) map[string]any {
	return map[string]any{
		PropName:       titleProp(rec.CategoryName),
		PropProjectID:  richTextProp(rec.CategoryID),
		PropTeam:       richTextProp(rec.Team),
		PropWeekEnding: dateProp(rec.WeekEnding),
		PropUpdateID:   richTextProp(rec.UpdateID),
		PropUpdatedAt:  richTextProp(rec.UpdatedAt),
		PropMultiTeam:  checkboxProp(rec.MultiTeam),
	}
}

func recordFromPage(p page) docstore.Record {
	props := p.Properties
	return docstore.Record{
		PageID:       p.ID,
		UpdateID:     props[PropUpdateID].text(),
		CategoryID:   props[PropProjectID].text(),
		CategoryName: props[PropName].text(),
		Team:         props[PropTeam].text(),
		MultiTeam:    props[PropMultiTeam].Checkbox,
		WeekEnding:   props[PropWeekEnding].date(),
		UpdatedAt:    props[PropUpdatedAt].text(),
		LastEdited:   p.LastEditedTime,
	}
}

func (c *Client) query(ctx context.Context, op, databaseID string, body map[string]any) (queryResponse, error) {
	var resp queryResponse
	path := "/databases/" + url.PathEscape(databaseID) + "/query"
	err := c.do(ctx, op, http.MethodPost, path, body, &resp)
	return resp, err
}

// FindRecord returns the record for updateID or docstore.ErrNotFound.
func (c *Client) FindRecord(ctx context.Context, updateID string) (docstore.Record, error) {
	resp, err := c.query(ctx, "find record", c.databaseID, map[string]any{
		"filter": map[string]any{
			"property":  PropUpdateID,
			"rich_text": map[string]any{"equals": updateID},
		},
		"sorts":     []map[string]any{{"timestamp": "created_time", "direction": "ascending"}},
		"page_size": 2,
	})
	if err != nil {
		return docstore.Record{}, err
	}
	if len(resp.Results) == 0 {
		return docstore.Record{}, fmt.Errorf("record %s: %w", updateID, docstore.ErrNotFound)
	}
	if len(resp.Results) > 1 {
		c.logger.Warn("more than one record for update, using the oldest", "update_id", updateID)
	}
	return recordFromPage(resp.Results[0]), nil
}

// CreateRecord creates a record page. Children beyond the first 100 are
// appended in follow-up requests; if one fails the created record is
// returned along with the error.
func (c *Client) CreateRecord(ctx context.Context, rec docstore.Record, children []blocks.Block) (docstore.Record, error) {
	first := children
	if len(first) > maxAppendBlocks {
		first = children[:maxAppendBlocks]
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": recordProperties(rec),
		"children":   first,
	}
	if first == nil {
		body["children"] = []blocks.Block{}
	}

	var created page
	if err := c.do(ctx, "create record", http.MethodPost, "/pages", body, &created); err != nil {
		return docstore.Record{}, err
	}
	rec.PageID = created.ID
	rec.LastEdited = created.LastEditedTime

	if len(children) > maxAppendBlocks {
		if err := c.AppendChildren(ctx, created.ID, children[maxAppendBlocks:]); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// UpdateRecord rewrites every record property of rec.PageID.
func (c *Client) UpdateRecord(ctx context.Context, rec docstore.Record) error {
	if rec.PageID == "" {
		return fmt.Errorf("update record %s: missing page id", rec.UpdateID)
	}
	body := map[string]any{"properties": recordProperties(rec)}
	return c.do(ctx, "update record", http.MethodPatch, "/pages/"+url.PathEscape(rec.PageID), body, nil)
}

// QueryRecords returns one page of the records anchored on weekEnding,
// oldest first.
func (c *Client) QueryRecords(ctx context.Context, weekEnding, cursor string) (docstore.RecordPage, error) {
	body := map[string]any{
		"filter": map[string]any{
			"and": []map[string]any{
				{"property": PropWeekEnding, "date": map[string]any{"equals": weekEnding}},
				{"property": PropUpdateID, "rich_text": map[string]any{"is_not_empty": true}},
			},
		},
		"sorts":     []map[string]any{{"timestamp": "created_time", "direction": "ascending"}},
		"page_size": docstore.PageSize,
	}
	if cursor != "" {
		body["start_cursor"] = cursor
	}

	resp, err := c.query(ctx, "query records", c.databaseID, body)
	if err != nil {
		return docstore.RecordPage{}, err
	}
	out := docstore.RecordPage{HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		out.NextCursor = *resp.NextCursor
	}
	for _, p := range resp.Results {
		out.Records = append(out.Records, recordFromPage(p))
	}
	return out, nil
}
