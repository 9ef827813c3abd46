package feed

import (
	"testing"
	"time"
)

func TestReconnectPolicy_Fixed(t *testing.T) {
	p := DefaultPolicy()
	for n := 0; n < 10; n++ {
		if got := p.Backoff(n); got != 3*time.Second {
			t.Errorf("Backoff(%d) = %v, want 3s", n, got)
		}
	}
}

func TestReconnectPolicy_ZeroDelayDefaults(t *testing.T) {
	var p ReconnectPolicy
	if got := p.Backoff(0); got != 3*time.Second {
		t.Errorf("Backoff(0) = %v, want 3s", got)
	}
}

func TestReconnectPolicy_Exponential(t *testing.T) {
	p := ReconnectPolicy{Delay: time.Second, Max: 30 * time.Second, Multiplier: 2}

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
