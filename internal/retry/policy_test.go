package retry

import (
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Base: time.Second, Max: 10 * time.Second, MaxRetries: 5}
	cases := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.retries); got != tc.want {
			t.Errorf("Delay(%d) = %s, want %s", tc.retries, got, tc.want)
		}
	}
}

func TestDelayNegativeRetries(t *testing.T) {
	p := Policy{Base: time.Second}
	if got := p.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %s, want 1s", got)
	}
}

func TestExhausted(t *testing.T) {
	p := Policy{Base: time.Second, MaxRetries: 3}
	if p.Exhausted(3) {
		t.Error("3 retries should still be allowed with MaxRetries=3")
	}
	if !p.Exhausted(4) {
		t.Error("4 retries must be exhausted with MaxRetries=3")
	}
}
