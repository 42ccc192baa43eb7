package notion

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

type user struct {
	Object string `json:"object,omitempty"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Person *struct {
		Email string `json:"email"`
	} `json:"person,omitempty"`
}

type usersResponse struct {
	Results    []user  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// AddContact adds name to the Contact property of pageID without
// duplicating existing entries. The property may be rich_text, title,
// multi_select or people. For people the name is resolved against the
// workspace users; an unknown name leaves the property untouched.
func (c *Client) AddContact(ctx context.Context, pageID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	var p page
	if err := c.do(ctx, "read page", http.MethodGet, "/pages/"+url.PathEscape(pageID), nil, &p); err != nil {
		return err
	}
	prop := p.Properties[PropContact]

	var value map[string]any
	switch prop.Type {
	case "people":
		var ids []string
		for _, u := range prop.People {
			ids = append(ids, u.ID)
		}
		id, err := c.findUser(ctx, name)
		if err != nil {
			return err
		}
		if id == "" {
			c.logger.Warn("no workspace user matches contact, leaving property unchanged", "page_id", pageID, "contact", name)
			return nil
		}
		if slices.Contains(ids, id) {
			return nil
		}
		people := make([]map[string]any, 0, len(ids)+1)
		for _, existing := range append(ids, id) {
			people = append(people, map[string]any{"object": "user", "id": existing})
		}
		value = map[string]any{"people": people}

	case "multi_select":
		var names []string
		for _, o := range prop.MultiSelect {
			names = append(names, o.Name)
		}
		if slices.Contains(names, name) {
			return nil
		}
		opts := make([]map[string]any, 0, len(names)+1)
		for _, n := range append(names, name) {
			opts = append(opts, map[string]any{"name": n})
		}
		value = map[string]any{"multi_select": opts}

	default:
		names := splitContacts(prop.text())
		if slices.Contains(names, name) {
			return nil
		}
		joined := strings.Join(append(names, name), ", ")
		if prop.Type == "title" {
			value = titleProp(joined)
		} else {
			value = richTextProp(joined)
		}
	}

	body := map[string]any{"properties": map[string]any{PropContact: value}}
	return c.do(ctx, "update contact", http.MethodPatch, "/pages/"+url.PathEscape(pageID), body, nil)
}

func splitContacts(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

// findUser returns the id of the first workspace user whose name or email
// contains name, case-insensitively, or "" when none does.
func (c *Client) findUser(ctx context.Context, name string) (string, error) {
	needle := strings.ToLower(name)
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(100))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var resp usersResponse
		if err := c.do(ctx, "list users", http.MethodGet, "/users?"+q.Encode(), nil, &resp); err != nil {
			return "", err
		}
		for _, u := range resp.Results {
			if u.Name != "" && strings.Contains(strings.ToLower(u.Name), needle) {
				return u.ID, nil
			}
			if u.Person != nil && u.Person.Email != "" && strings.Contains(strings.ToLower(u.Person.Email), needle) {
				return u.ID, nil
			}
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return "", nil
		}
		cursor = *resp.NextCursor
	}
}
