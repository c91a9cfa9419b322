package logging

import "testing"

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New("chatty", "provider-fetch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Fatal("debug should be disabled when level is unknown")
	}
	if !log.Core().Enabled(0) {
		t.Fatal("info should be enabled")
	}
}

func TestNew_DebugLevel(t *testing.T) {
	log, err := New(" DEBUG ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Fatal("expected debug to be enabled")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected a no-op logger for nil input")
	}
}
