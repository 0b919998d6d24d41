package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel, "": InfoLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(NewWriterOutput(&buf)), WithFormatter(&JSONFormatter{}))
	l.With(Component("pagination")).Info("page sealed", Int64("sequence", 3))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["msg"] != "page sealed" || got["component"] != "pagination" {
		t.Fatalf("unexpected entry: %v", got)
	}
	if got["sequence"].(float64) != 3 {
		t.Fatalf("sequence field missing: %v", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(NewWriterOutput(&buf)), WithLevel(WarnLevel), WithFormatter(&TextFormatter{}))
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(NewWriterOutput(&buf)), WithFormatter(&TextFormatter{}), WithRedactedKeys("secret"))
	l.Info("x", Str("secret", "hunter2"))
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("secret leaked: %q", buf.String())
	}
}
