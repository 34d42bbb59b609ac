package amqp

import (
	"testing"
	"time"
)

func TestKeyExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	tests := []struct {
		name      string
		published time.Time
		ttl       time.Duration
		want      bool
	}{
		{"fresh", now.Add(-time.Minute), ttl, false},
		{"exactly ttl", now.Add(-ttl), ttl, true},
		{"older than ttl", now.Add(-25 * time.Hour), ttl, true},
		{"missing timestamp", time.Time{}, ttl, false},
		{"ttl disabled", now.Add(-48 * time.Hour), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyExpired(tt.published, tt.ttl, now); got != tt.want {
				t.Errorf("keyExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
