package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLinePlain(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running (pid 42)", false)
	if !strings.Contains(got, "Daemon:") || !strings.HasSuffix(got, "[OK] Running (pid 42)") {
		t.Fatalf("unexpected line %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("plain line should not contain escapes: %q", got)
	}
}

func TestRenderStatusLineColorized(t *testing.T) {
	got := renderStatusLine("Store", statusError, "", true)
	if !strings.HasPrefix(got, ansiRed) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected red line, got %q", got)
	}
	if !strings.Contains(got, "[ERROR]") {
		t.Fatalf("expected ERROR label, got %q", got)
	}
}

func TestRenderSectionHeaderRuleMatchesTitle(t *testing.T) {
	lines := renderSectionHeader("Tasks", false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if len(lines[0]) != len(lines[1]) {
		t.Fatalf("rule length %d does not match header %d", len(lines[1]), len(lines[0]))
	}
}

func TestShouldColorizeBuffer(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
