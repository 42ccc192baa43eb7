package blocks

import (
	"errors"
	"fmt"
)

// NormalizeResult is the outcome of repairing untrusted block output.
type NormalizeResult struct {
	Blocks  []Block
	Dropped int // elements that were not objects
	Skipped int // objects that could not be repaired
	Errors  []error
}

// Normalize repairs each element of raw into a Block. One bad element never
// aborts the batch: non-object elements are dropped and counted, and objects
// that cannot be repaired are skipped with their error recorded.
func Normalize(raw []any) NormalizeResult {
	var res NormalizeResult
	for i, el := range raw {
		m, ok := el.(map[string]any)
		if !ok {
			res.Dropped++
			continue
		}
		b, err := normalizeBlock(m)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Errorf("block %d: %w", i, err))
			continue
		}
		res.Blocks = append(res.Blocks, b)
	}
	return res
}

var errNoEmbedURL = errors.New("embed block has no url")

func normalizeBlock(m map[string]any) (Block, error) {
	typ := TypeParagraph
	if s, ok := m["type"].(string); ok && s != "" {
		typ = Type(s)
	} else if _, present := m["type"]; present {
		return Block{}, fmt.Errorf("block type is not a string: %T", m["type"])
	}

	switch {
	case typ == TypeDivider:
		return Divider(), nil
	case typ == TypeEmbed:
		url := embedURL(m)
		if url == "" {
			return Block{}, errNoEmbedURL
		}
		return Embed(url), nil
	case typ.TextBearing():
		spans, err := normalizeRichText(m[string(typ)])
		if err != nil {
			return Block{}, fmt.Errorf("%s: %w", typ, err)
		}
		return Block{Type: typ, RichText: spans}, nil
	default:
		return Block{}, fmt.Errorf("unsupported block type %q", typ)
	}
}

// embedURL accepts {embed:{url}}, {embed:"url"} and a top-level {url}.
func embedURL(m map[string]any) string {
	switch e := m["embed"].(type) {
	case string:
		return e
	case map[string]any:
		if u, ok := e["url"].(string); ok && u != "" {
			return u
		}
	}
	if u, ok := m["url"].(string); ok {
		return u
	}
	return ""
}

func normalizeRichText(body any) ([]RichText, error) {
	var items any
	switch b := body.(type) {
	case nil:
		return []RichText{}, nil
	case string:
		items = []any{b}
	case map[string]any:
		items = b["rich_text"]
		if t, ok := b["text"]; ok {
			items = wrapScalar(t)
		}
	default:
		return nil, fmt.Errorf("unexpected body %T", body)
	}

	list, ok := items.([]any)
	if !ok {
		return []RichText{}, nil
	}

	spans := make([]RichText, 0, len(list))
	for _, it := range list {
		switch v := it.(type) {
		case string:
			spans = append(spans, Plain(v))
		case map[string]any:
			spans = append(spans, normalizeSpan(v))
		}
	}
	return spans, nil
}

// wrapScalar turns a text value into a list of span candidates.
func wrapScalar(v any) any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return []any{}
	case string:
		if t == "" {
			return []any{}
		}
		return []any{t}
	default:
		return []any{t}
	}
}

func normalizeSpan(m map[string]any) RichText {
	rt := RichText{Type: "text"}

	switch t := m["text"].(type) {
	case string:
		rt.Text.Content = t
	case map[string]any:
		rt.Text.Content, _ = t["content"].(string)
		rt.Text.Link = toLink(t["link"])
	default:
		if c, ok := m["content"].(string); ok {
			rt.Text.Content = c
		} else if p, ok := m["plain_text"].(string); ok {
			rt.Text.Content = p
		}
	}

	// A top-level link always moves under text.
	if l, ok := m["link"]; ok {
		if link := toLink(l); link != nil {
			rt.Text.Link = link
		}
	}

	if a, ok := m["annotations"].(map[string]any); ok {
		rt.Annotations = toAnnotations(a)
	}
	return rt
}

func toLink(v any) *Link {
	switch l := v.(type) {
	case string:
		if l != "" {
			return &Link{URL: l}
		}
	case map[string]any:
		if u, ok := l["url"].(string); ok && u != "" {
			return &Link{URL: u}
		}
	}
	return nil
}

func toAnnotations(m map[string]any) *Annotations {
	a := &Annotations{}
	a.Bold, _ = m["bold"].(bool)
	a.Italic, _ = m["italic"].(bool)
	a.Strikethrough, _ = m["strikethrough"].(bool)
	a.Underline, _ = m["underline"].(bool)
	a.Code, _ = m["code"].(bool)
	a.Color, _ = m["color"].(string)
	return a
}
