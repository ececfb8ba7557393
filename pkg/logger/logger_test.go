package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.Info("should not appear")
	l.Warn("should appear")
	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("info logged despite warn level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn not logged: %q", out)
	}
}

func TestNewWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithPrefix(&buf, LevelDebug, "registry")
	l.Debug("hello")
	if !strings.Contains(buf.String(), "registry") {
		t.Fatalf("prefix missing: %q", buf.String())
	}
}
