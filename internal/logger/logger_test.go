package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{NoColor: true, Output: &buf})
	log.Debug("hidden")
	log.Info("shown")
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug logged without verbose: %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "shown") {
		t.Fatalf("info missing: %q", out)
	}

	buf.Reset()
	log = New(Options{Verbose: true, NoColor: true, Output: &buf})
	log.Debug("conn failed")
	_ = log.Sync()
	if !strings.Contains(buf.String(), "DEBUG") {
		t.Fatalf("debug missing with verbose: %q", buf.String())
	}
}
