package blocks

import "testing"

func TestHealthLabel(t *testing.T) {
	tests := map[string]string{
		"onTrack":  "on track",
		"on_track": "on track",
		"atRisk":   "at risk",
		"offTrack": "off track",
		"paused":   "paused",
		"":         "",
	}
	for in, want := range tests {
		if got := HealthLabel(in); got != want {
			t.Errorf("HealthLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealthColor(t *testing.T) {
	tests := map[string]string{
		"onTrack":   "green",
		"on_track":  "green",
		"atRisk":    "yellow",
		"off_track": "red",
		"unknown":   "gray",
	}
	for in, want := range tests {
		if got := HealthColor(in); got != want {
			t.Errorf("HealthColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusBlock(t *testing.T) {
	b, ok := StatusBlock("In Progress", "atRisk")
	if !ok {
		t.Fatal("expected status block")
	}
	if got := b.PlainText(); got != "🟡 In Progress: at risk" {
		t.Errorf("text = %q", got)
	}
	for _, rt := range b.RichText {
		if rt.Annotations == nil || rt.Annotations.Color != "yellow" {
			t.Errorf("span %q color = %+v, want yellow", rt.Text.Content, rt.Annotations)
		}
	}

	b, ok = StatusBlock("", "onTrack")
	if !ok || b.PlainText() != "🟢 on track" {
		t.Errorf("no project status: %q", b.PlainText())
	}

	b, ok = StatusBlock("Planned", "")
	if !ok || b.PlainText() != "Planned" || b.RichText[0].Annotations.Color != "gray" {
		t.Errorf("project status only: %+v", b)
	}

	if _, ok := StatusBlock("", ""); ok {
		t.Error("expected no status block without any status")
	}
}
