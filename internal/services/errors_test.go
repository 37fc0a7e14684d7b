package services_test

import (
	"errors"
	"strings"
	"testing"

	"dlq/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "engine", "custom command", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"engine", "custom command", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestSummaryStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "engine", "fetch", "HTTP 404 Not Found", nil)
	if got := services.Summary(err); got != "engine: fetch: HTTP 404 Not Found" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := services.Summary(errors.New("plain")); got != "plain" {
		t.Fatalf("unexpected summary for plain error %q", got)
	}
	if services.Summary(nil) != "" {
		t.Fatal("expected empty summary for nil")
	}
}

func TestHintMapping(t *testing.T) {
	timeout := services.Wrap(services.ErrTimeout, "plugin", "resolve", "", nil)
	if !strings.Contains(services.Hint(timeout), "request_timeout") {
		t.Fatalf("unexpected timeout hint %q", services.Hint(timeout))
	}
	if services.Hint(errors.New("x")) == "" {
		t.Fatal("expected default hint")
	}
}
