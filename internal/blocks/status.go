package blocks

import (
	"strings"
	"unicode"
)

type health struct {
	color string
	glyph string
}

var healthVocabulary = map[string]health{
	"ontrack":  {color: "green", glyph: "🟢"},
	"atrisk":   {color: "yellow", glyph: "🟡"},
	"offtrack": {color: "red", glyph: "🔴"},
}

var neutralHealth = health{color: "gray", glyph: "⚪"}

func lookupHealth(h string) health {
	key := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, h)
	if v, ok := healthVocabulary[key]; ok {
		return v
	}
	return neutralHealth
}

// HealthColor returns the annotation color for an update health value.
func HealthColor(h string) string {
	return lookupHealth(h).color
}

// HealthGlyph returns the colored circle shown before a health label.
func HealthGlyph(h string) string {
	return lookupHealth(h).glyph
}

// HealthLabel renders a health enum as lower-cased, space-separated words:
// "onTrack" and "on_track" both become "on track".
func HealthLabel(h string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(strings.TrimSpace(h))
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return strings.Join(words, " ")
}

// StatusBlock builds the status line shown under an update heading:
// glyph, optional project status, then the update's own health label.
// When only the project status is known it is shown in gray.
func StatusBlock(projectStatus, updateHealth string) (Block, bool) {
	projectStatus = strings.TrimSpace(projectStatus)
	label := HealthLabel(updateHealth)

	if label == "" {
		if projectStatus == "" {
			return Block{}, false
		}
		return Paragraph(Colored(projectStatus, neutralHealth.color)), true
	}

	h := lookupHealth(updateHealth)
	sep := " "
	if projectStatus != "" {
		sep = " " + projectStatus + ": "
	}
	return Paragraph(
		Colored(h.glyph, h.color),
		Colored(sep, h.color),
		Colored(label, h.color),
	), true
}
