package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf})
	log.Debug("hidden")
	log.Info("shown", "key", "value")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line logged without Verbose")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("info line missing from output: %q", out)
	}

	buf.Reset()
	verbose := New(Options{Verbose: true, Writer: &buf})
	verbose.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line suppressed with Verbose set")
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf}).With("component", "invalidation")
	log.Warn("degraded")
	if !strings.Contains(buf.String(), "component=invalidation") {
		t.Errorf("attribute missing from output: %q", buf.String())
	}
}

func TestNopIsSilent(t *testing.T) {
	log := Nop()
	log.Debug("a")
	log.Info("b")
	log.Warn("c")
	log.Error("d")
	if log.With("key", "value") == nil {
		t.Error("With returned nil")
	}
}
