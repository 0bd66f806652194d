package engine

import (
	"testing"
	"time"
)

func TestHandle_Valid(t *testing.T) {
	if Handle(0).Valid() {
		t.Error("handle 0 must be invalid")
	}
	if !Handle(1).Valid() {
		t.Error("handle 1 must be valid")
	}
}

func TestToken_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"zero never expires", time.Time{}, false},
		{"future", now.Add(time.Hour), false},
		{"past", now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{ExpiresAt: tt.expires}
			if got := tok.Expired(now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextStatus_String(t *testing.T) {
	tests := map[ContextStatus]string{
		StatusError:         "error",
		StatusUninitialized: "uninitialized",
		StatusRunning:       "running",
		StatusStopped:       "stopped",
		StatusShutdown:      "shutdown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestID_String(t *testing.T) {
	var id ID
	id[0] = 0xab
	if got := id.String(); len(got) != 64 || got[:2] != "ab" {
		t.Errorf("ID.String() = %q", got)
	}
}
