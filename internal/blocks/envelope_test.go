package blocks

import (
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	list, err := ParseEnvelope("```json\n{\"blocks\":[{\"type\":\"divider\"}]}\n```")
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d elements", len(list))
	}

	for _, bad := range []string{`[]`, `{"blocks":"x"}`, `{"blocks":[]}`, `{}`, `{`} {
		if _, err := ParseEnvelope(bad); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("ParseEnvelope(%q) err = %v, want ErrMalformedEnvelope", bad, err)
		}
	}
}
