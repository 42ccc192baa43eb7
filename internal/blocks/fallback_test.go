package blocks

import (
	"strings"
	"testing"
)

func concat(spans []RichText) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text.Content)
	}
	return sb.String()
}

func TestLinkify_ScenarioTrailingDot(t *testing.T) {
	spans := Linkify("see https://x.test/a.")

	if len(spans) < 2 {
		t.Fatalf("got %d spans, want at least 2", len(spans))
	}
	if spans[0].Text.Content != "see " || spans[0].Text.Link != nil {
		t.Errorf("spans[0] = %+v, want plain %q", spans[0], "see ")
	}
	if spans[1].Text.Content != "https://x.test/a" {
		t.Errorf("spans[1].content = %q, want %q", spans[1].Text.Content, "https://x.test/a")
	}
	if spans[1].Text.Link == nil || spans[1].Text.Link.URL != "https://x.test/a" {
		t.Errorf("spans[1].link = %+v, want https://x.test/a", spans[1].Text.Link)
	}
	if got := concat(spans); got != "see https://x.test/a." {
		t.Errorf("concatenated spans = %q", got)
	}
}

func TestLinkify_TwoURLsRoundTrip(t *testing.T) {
	text := "Demo at https://loom.com/share/abc, tracked in (https://linear.app/t/ISS-1). Done!"
	spans := Linkify(text)

	if got := concat(spans); got != text {
		t.Fatalf("round trip = %q, want %q", got, text)
	}

	var links []string
	for i, s := range spans {
		if s.Text.Link != nil {
			links = append(links, s.Text.Link.URL)
			if s.Text.Content != s.Text.Link.URL {
				t.Errorf("span %d content %q != url %q", i, s.Text.Content, s.Text.Link.URL)
			}
		}
		if i > 0 && (s.Text.Link != nil) == (spans[i-1].Text.Link != nil) {
			t.Errorf("spans %d and %d do not alternate", i-1, i)
		}
	}
	want := []string{"https://loom.com/share/abc", "https://linear.app/t/ISS-1"}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestLinkify_NoURL(t *testing.T) {
	spans := Linkify("just words")
	if len(spans) != 1 || spans[0].Text.Content != "just words" || spans[0].Text.Link != nil {
		t.Errorf("Linkify(no url) = %+v", spans)
	}
}

func TestLinkify_URLOnly(t *testing.T) {
	spans := Linkify("https://a.test/x")
	if len(spans) != 1 || spans[0].Text.Link == nil {
		t.Fatalf("Linkify(url only) = %+v", spans)
	}
}

func TestFallbackBlocks_Blank(t *testing.T) {
	if got := FallbackBlocks("  \n "); got != nil {
		t.Errorf("FallbackBlocks(blank) = %+v, want nil", got)
	}
	got := FallbackBlocks("hello")
	if len(got) != 1 || got[0].Type != TypeParagraph {
		t.Errorf("FallbackBlocks(hello) = %+v", got)
	}
}
