package blocks

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeList(t *testing.T, s string) []any {
	t.Helper()
	var v []any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

func TestNormalize_DefaultsType(t *testing.T) {
	res := Normalize(decodeList(t, `[{"paragraph":{"rich_text":[{"text":{"content":"hi"}}]}}]`))
	if len(res.Blocks) != 1 || res.Blocks[0].Type != TypeParagraph {
		t.Fatalf("blocks = %+v", res.Blocks)
	}
	if res.Blocks[0].PlainText() != "hi" {
		t.Errorf("text = %q", res.Blocks[0].PlainText())
	}
}

func TestNormalize_EmbedShapes(t *testing.T) {
	res := Normalize(decodeList(t, `[
		{"type":"embed","url":"https://loom.com/a"},
		{"type":"embed","embed":"https://youtube.com/b"},
		{"type":"embed","embed":{"url":"https://vimeo.com/c"}},
		{"type":"embed"}
	]`))

	want := []string{"https://loom.com/a", "https://youtube.com/b", "https://vimeo.com/c"}
	if len(res.Blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(res.Blocks), len(want))
	}
	for i, u := range want {
		if res.Blocks[i].Type != TypeEmbed || res.Blocks[i].URL != u {
			t.Errorf("block %d = %+v, want embed %s", i, res.Blocks[i], u)
		}
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
}

func TestNormalize_TextInsteadOfRichText(t *testing.T) {
	res := Normalize(decodeList(t, `[
		{"type":"paragraph","paragraph":{"text":"plain scalar"}},
		{"type":"bulleted_list_item","bulleted_list_item":{"text":["a", {"text":"b"}]}},
		{"type":"heading_3","heading_3":{"rich_text":"not a list"}}
	]`))

	if len(res.Blocks) != 3 {
		t.Fatalf("got %d blocks", len(res.Blocks))
	}
	if got := res.Blocks[0].PlainText(); got != "plain scalar" {
		t.Errorf("paragraph text = %q", got)
	}
	if got := res.Blocks[1].PlainText(); got != "ab" {
		t.Errorf("list item text = %q", got)
	}
	if res.Blocks[2].RichText == nil || len(res.Blocks[2].RichText) != 0 {
		t.Errorf("heading rich text = %#v, want empty list", res.Blocks[2].RichText)
	}
}

func TestNormalize_RelocatesTopLevelLink(t *testing.T) {
	res := Normalize(decodeList(t, `[
		{"type":"paragraph","paragraph":{"rich_text":[
			{"type":"text","text":{"content":"issue"},"link":{"url":"https://linear.app/x"}},
			{"text":"doc","link":"https://docs.test"}
		]}}
	]`))
	if len(res.Blocks) != 1 {
		t.Fatalf("got %d blocks", len(res.Blocks))
	}
	spans := res.Blocks[0].RichText
	if spans[0].Text.Link == nil || spans[0].Text.Link.URL != "https://linear.app/x" {
		t.Errorf("span 0 link = %+v", spans[0].Text.Link)
	}
	if spans[1].Text.Link == nil || spans[1].Text.Link.URL != "https://docs.test" {
		t.Errorf("span 1 link = %+v", spans[1].Text.Link)
	}

	out, err := json.Marshal(res.Blocks[0])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(out, &decoded)
	for _, s := range decoded["paragraph"].(map[string]any)["rich_text"].([]any) {
		if _, ok := s.(map[string]any)["link"]; ok {
			t.Errorf("span has top-level link key: %v", s)
		}
	}
}

func TestNormalize_DropsNonObjectsAndSkipsBadBlocks(t *testing.T) {
	res := Normalize(decodeList(t, `[
		"a string",
		42,
		{"type":"code","code":{}},
		{"type":"paragraph","paragraph":{"rich_text":["ok"]}},
		{"type":7}
	]`))

	if res.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", res.Dropped)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].PlainText() != "ok" {
		t.Errorf("Blocks = %+v", res.Blocks)
	}
	if len(res.Errors) != 2 || !strings.Contains(res.Errors[0].Error(), "unsupported") {
		t.Errorf("Errors = %v", res.Errors)
	}
}
