package blocks

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]\}]+`)

const trailingPunctuation = ".,;:!?)"

// Linkify splits text into spans that alternate plain segments and link
// segments. Trailing punctuation is kept out of each link and left in the
// following plain segment, so concatenating the spans reproduces text exactly.
func Linkify(text string) []RichText {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []RichText{Plain(text)}
	}

	var spans []RichText
	last := 0
	for _, m := range matches {
		start := m[0]
		url := strings.TrimRight(text[start:m[1]], trailingPunctuation)
		end := start + len(url)

		if start > last {
			spans = append(spans, Plain(text[last:start]))
		}
		spans = append(spans, Linked(url, url))
		last = end
	}
	if last < len(text) {
		spans = append(spans, Plain(text[last:]))
	}
	return spans
}

// FallbackBlocks renders text as a single linkified paragraph. Blank text
// yields no blocks.
func FallbackBlocks(text string) []Block {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Block{Paragraph(Linkify(text)...)}
}
