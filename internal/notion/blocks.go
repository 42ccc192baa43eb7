package notion

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
)

type childrenResponse struct {
	Results    []blocks.Block `json:"results"`
	HasMore    bool           `json:"has_more"`
	NextCursor *string        `json:"next_cursor"`
}

// Children returns one page of the children of pageID.
func (c *Client) Children(ctx context.Context, pageID, cursor string) (docstore.BlockPage, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(docstore.PageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}

	var resp childrenResponse
	path := "/blocks/" + url.PathEscape(pageID) + "/children?" + q.Encode()
	if err := c.do(ctx, "list children", http.MethodGet, path, nil, &resp); err != nil {
		return docstore.BlockPage{}, err
	}

	page := docstore.BlockPage{Blocks: resp.Results, HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	return page, nil
}

// AppendChildren appends bs to pageID in requests of at most 100 blocks.
func (c *Client) AppendChildren(ctx context.Context, pageID string, bs []blocks.Block) error {
	for start := 0; start < len(bs); start += maxAppendBlocks {
		end := min(start+maxAppendBlocks, len(bs))
		body := map[string]any{"children": bs[start:end]}
		path := "/blocks/" + url.PathEscape(pageID) + "/children"
		if err := c.do(ctx, "append children", http.MethodPatch, path, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBlock archives a single block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	return c.do(ctx, "delete block", http.MethodDelete, "/blocks/"+url.PathEscape(blockID), nil, nil)
}
