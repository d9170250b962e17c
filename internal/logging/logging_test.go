package logging

import "testing"

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(level)
		if err != nil {
			t.Fatalf("New(%q): %v", level, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestNewFallsBackOnUnknownLevel(t *testing.T) {
	logger, err := New("not-a-level")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected a usable logger on fallback")
	}
}

func TestComponentTagsSubsystem(t *testing.T) {
	base, err := New("info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := Component(base, "session")
	if child == nil {
		t.Fatalf("Component returned nil")
	}
}
