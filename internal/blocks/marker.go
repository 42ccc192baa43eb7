package blocks

import "strings"

// DefaultNamespace prefixes every end marker written by this service.
const DefaultNamespace = "linear-update-id"

// MarkerColor is the muted color end markers are rendered in.
const MarkerColor = "gray"

// Marker returns the end-marker literal for an update.
func Marker(namespace, updateID string) string {
	return namespace + ":" + updateID
}

// MarkerBlock returns the trailing paragraph that closes an update's range.
func MarkerBlock(namespace, updateID string) Block {
	return Paragraph(Colored(Marker(namespace, updateID), MarkerColor))
}

// IsRangeStart reports whether bs[i] is a divider immediately followed by a
// heading_2.
func IsRangeStart(bs []Block, i int) bool {
	return i >= 0 && i+1 < len(bs) && bs[i].Type == TypeDivider && bs[i+1].Type == TypeHeading2
}

// HasMarker reports whether b is a paragraph carrying marker in one of its
// spans. The marker must not be followed by another identifier character, so
// "ns:U1" does not match a block marked "ns:U10".
func HasMarker(b Block, marker string) bool {
	if b.Type != TypeParagraph || marker == "" {
		return false
	}
	for _, rt := range b.RichText {
		if containsMarker(rt.Text.Content, marker) {
			return true
		}
	}
	return false
}

func containsMarker(s, marker string) bool {
	for {
		i := strings.Index(s, marker)
		if i < 0 {
			return false
		}
		rest := s[i+len(marker):]
		if rest == "" || !isIDChar(rest[0]) {
			return true
		}
		s = s[i+1:]
	}
}

func isIDChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
