package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/vizchat/internal/hermes"
)

func TestFormatEvent(t *testing.T) {
	line := formatEvent(hermes.VisualizationEvent{
		Task:       "pie chart of browsers",
		Attempts:   3,
		Success:    false,
		LastError:  "Traceback (most recent call last):\n  File \"script.py\", line 9\nNameError: name 'df' is not defined\n",
		DurationMS: 4200,
		Timestamp:  "2026-10-16T09:00:00Z",
	})

	want := `2026-10-16T09:00:00Z FAILED attempts=3 4200ms "pie chart of browsers" error=NameError: name 'df' is not defined`
	if line != want {
		t.Errorf("unexpected line:\n got %s\nwant %s", line, want)
	}
}

func TestFormatEvent_Success(t *testing.T) {
	line := formatEvent(hermes.VisualizationEvent{Task: "t", Attempts: 1, Success: true, Timestamp: "ts"})

	if !strings.Contains(line, " ok ") {
		t.Errorf("expected ok status, got %q", line)
	}
	if strings.Contains(line, "error=") {
		t.Errorf("expected no error suffix, got %q", line)
	}
}

func TestRenderRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cmd := newRenderCmd()
	cmd.SetArgs([]string{"bar", "chart"})
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing API key error, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected nothing on stdout, got %q", stdout.String())
	}
}

func TestEventsRequiresNATS(t *testing.T) {
	t.Setenv("NATS_URL", "")

	cmd := newEventsCmd()
	cmd.SetArgs([]string{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "NATS_URL") {
		t.Fatalf("expected missing NATS_URL error, got %v", err)
	}
}
