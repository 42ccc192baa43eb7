// Package blocks models the subset of document blocks an update is rendered
// into, and converts freeform update text into them.
package blocks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the block variant tag.
type Type string

const (
	TypeParagraph        Type = "paragraph"
	TypeHeading1         Type = "heading_1"
	TypeHeading2         Type = "heading_2"
	TypeHeading3         Type = "heading_3"
	TypeBulletedListItem Type = "bulleted_list_item"
	TypeNumberedListItem Type = "numbered_list_item"
	TypeEmbed            Type = "embed"
	TypeDivider          Type = "divider"
)

// TextBearing reports whether blocks of this type carry rich text.
func (t Type) TextBearing() bool {
	switch t {
	case TypeParagraph, TypeHeading1, TypeHeading2, TypeHeading3, TypeBulletedListItem, TypeNumberedListItem:
		return true
	}
	return false
}

// Supported reports whether t is one of the variants this package can write.
func (t Type) Supported() bool {
	return t.TextBearing() || t == TypeEmbed || t == TypeDivider
}

// Link is a hyperlink target.
type Link struct {
	URL string `json:"url"`
}

// Text is the text object of a rich-text span.
type Text struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Annotations holds span styling.
type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color,omitempty"`
}

// RichText is one span of text. A link always lives under Text, never beside it.
type RichText struct {
	Type        string       `json:"type"`
	Text        Text         `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// UnmarshalJSON accepts spans as the store returns them. Non-text spans
// (mentions, equations) are folded into text spans using their plain text.
func (r *RichText) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string       `json:"type"`
		Text        *Text        `json:"text"`
		PlainText   string       `json:"plain_text"`
		Href        string       `json:"href"`
		Annotations *Annotations `json:"annotations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Type = "text"
	r.Annotations = raw.Annotations
	if raw.Text != nil {
		r.Text = *raw.Text
		return nil
	}
	r.Text = Text{Content: raw.PlainText}
	if raw.Href != "" {
		r.Text.Link = &Link{URL: raw.Href}
	}
	return nil
}

// Plain returns an unstyled span.
func Plain(content string) RichText {
	return RichText{Type: "text", Text: Text{Content: content}}
}

// Linked returns a span whose text links to url.
func Linked(content, url string) RichText {
	return RichText{Type: "text", Text: Text{Content: content, Link: &Link{URL: url}}}
}

// Colored returns an unstyled span rendered in color.
func Colored(content, color string) RichText {
	return RichText{Type: "text", Text: Text{Content: content}, Annotations: &Annotations{Color: color}}
}

// Block is a tagged union over the supported variants. RichText is used by
// text-bearing variants and URL by embeds; dividers carry neither.
type Block struct {
	ID          string
	Type        Type
	RichText    []RichText
	URL         string
	HasChildren bool
}

// Paragraph builds a paragraph block.
func Paragraph(spans ...RichText) Block {
	return Block{Type: TypeParagraph, RichText: spans}
}

// Heading builds a heading block of level 1 to 3.
func Heading(level int, spans ...RichText) Block {
	t := TypeHeading1
	switch level {
	case 2:
		t = TypeHeading2
	case 3:
		t = TypeHeading3
	}
	return Block{Type: t, RichText: spans}
}

// Divider builds a divider block.
func Divider() Block {
	return Block{Type: TypeDivider}
}

// Embed builds an embed block.
func Embed(url string) Block {
	return Block{Type: TypeEmbed, URL: url}
}

// PlainText concatenates the content of every span in b.
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, rt := range b.RichText {
		sb.WriteString(rt.Text.Content)
	}
	return sb.String()
}

// WithoutID returns a copy of b suitable for appending elsewhere.
func (b Block) WithoutID() Block {
	b.ID = ""
	b.HasChildren = false
	if b.RichText != nil {
		b.RichText = append([]RichText(nil), b.RichText...)
	}
	return b
}

type richTextBody struct {
	RichText []RichText `json:"rich_text"`
}

// MarshalJSON writes the block in its create-request shape. IDs are never
// written; they are assigned by the store.
func (b Block) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"object": "block",
		"type":   string(b.Type),
	}
	switch {
	case b.Type == TypeDivider:
		out["divider"] = struct{}{}
	case b.Type == TypeEmbed:
		out["embed"] = Link{URL: b.URL}
	case b.Type.TextBearing():
		rt := b.RichText
		if rt == nil {
			rt = []RichText{}
		}
		out[string(b.Type)] = richTextBody{RichText: rt}
	default:
		return nil, fmt.Errorf("unsupported block type %q", b.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a block as the store returns it. Unsupported variants
// keep their type and ID so callers can recognize and skip them.
func (b *Block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID          string `json:"id"`
		Type        Type   `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*b = Block{ID: head.ID, Type: head.Type, HasChildren: head.HasChildren}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	body, ok := fields[string(head.Type)]
	if !ok || len(body) == 0 {
		return nil
	}

	switch {
	case head.Type == TypeEmbed:
		var l Link
		if err := json.Unmarshal(body, &l); err != nil {
			return fmt.Errorf("decoding embed: %w", err)
		}
		b.URL = l.URL
	case head.Type.TextBearing():
		var rb richTextBody
		if err := json.Unmarshal(body, &rb); err != nil {
			return fmt.Errorf("decoding %s: %w", head.Type, err)
		}
		b.RichText = rb.RichText
	}
	return nil
}
