package notion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kalambet/lnsync/internal/docstore"
)

// FindRollup returns the rollup page titled title for weekEnding.
func (c *Client) FindRollup(ctx context.Context, title, weekEnding string) (docstore.Rollup, error) {
	resp, err := c.query(ctx, "find rollup", c.rollupDBID, map[string]any{
		"filter": map[string]any{
			"and": []map[string]any{
				{"property": PropName, "title": map[string]any{"equals": title}},
				{"property": PropWeekEnding, "date": map[string]any{"equals": weekEnding}},
			},
		},
		"page_size": 1,
	})
	if err != nil {
		return docstore.Rollup{}, err
	}
	if len(resp.Results) == 0 {
		return docstore.Rollup{}, fmt.Errorf("rollup %q: %w", title, docstore.ErrNotFound)
	}
	p := resp.Results[0]
	return docstore.Rollup{
		PageID:     p.ID,
		Title:      p.Properties[PropName].text(),
		WeekEnding: p.Properties[PropWeekEnding].date(),
	}, nil
}

// CreateRollup creates an empty rollup page.
func (c *Client) CreateRollup(ctx context.Context, title, weekEnding string) (docstore.Rollup, error) {
	body := map[string]any{
		"parent": map[string]any{"database_id": c.rollupDBID},
		"icon":   map[string]any{"type": "emoji", "emoji": c.icon},
		"properties": map[string]any{
			PropName:       titleProp(title),
			PropWeekEnding: dateProp(weekEnding),
		},
	}
	var created page
	if err := c.do(ctx, "create rollup", http.MethodPost, "/pages", body, &created); err != nil {
		return docstore.Rollup{}, err
	}
	c.logger.Info("created rollup page", "page_id", created.ID, "title", title)
	return docstore.Rollup{PageID: created.ID, Title: title, WeekEnding: weekEnding}, nil
}
