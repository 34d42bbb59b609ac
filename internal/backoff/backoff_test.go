package backoff_test

import (
	"testing"
	"time"

	"github.com/Harsh-BH/reel/internal/backoff"
)

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %v, want 10s", got)
	}
	if got := e.Delay(200); got != 10*time.Second {
		t.Errorf("Delay(200) = %v, want 10s", got)
	}
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	j := backoff.NewJittered(time.Second, time.Minute)

	for attempt := 1; attempt <= 8; attempt++ {
		base := backoff.NewExponential(time.Second, time.Minute).Delay(attempt)
		for i := 0; i < 50; i++ {
			got := j.Delay(attempt)
			if got < base/2 || got > base {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", attempt, got, base/2, base)
			}
		}
	}
}
