package rate

import (
	"context"
	"testing"
	"time"
)

func TestNewPacer_Interval(t *testing.T) {
	tests := []struct {
		name     string
		qps      float64
		expected time.Duration
	}{
		{"1 qps", 1.0, time.Second},
		{"10 qps", 10.0, 100 * time.Millisecond},
		{"100 qps", 100.0, 10 * time.Millisecond},
		{"non-positive defaults to 1", 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacer(tt.qps)
			if p.Interval() != tt.expected {
				t.Errorf("Interval() = %v, want %v", p.Interval(), tt.expected)
			}
		})
	}
}

func TestPacer_FirstTickImmediate(t *testing.T) {
	p := NewPacer(10.0)

	now := time.Now()
	tick := p.Next()
	if tick.Sub(now) > 10*time.Millisecond {
		t.Errorf("first tick delayed by %v, want immediate", tick.Sub(now))
	}
}

func TestPacer_SpacesTicksByInterval(t *testing.T) {
	p := NewPacer(100.0) // 10ms apart

	first := p.Next()
	second := p.Next()

	gap := second.Sub(first)
	if gap != 10*time.Millisecond {
		t.Errorf("tick gap = %v, want 10ms", gap)
	}
}

func TestPacer_SnapsBackWhenBehind(t *testing.T) {
	p := NewPacer(1000.0)

	_ = p.Next()
	// Fall behind by more than several intervals.
	time.Sleep(20 * time.Millisecond)

	now := time.Now()
	tick := p.Next()
	if tick.After(now.Add(time.Millisecond)) {
		t.Errorf("tick while behind schedule = %v in the future, want now", tick.Sub(now))
	}

	// The next tick should not burst: it advances from the snapped point.
	next := p.Next()
	if next.Sub(tick) != time.Millisecond {
		t.Errorf("post-catchup gap = %v, want 1ms", next.Sub(tick))
	}
}

func TestPacer_Wait_RespectsContext(t *testing.T) {
	p := NewPacer(0.5) // one tick every 2s

	_ = p.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Wait() took %v, should have cancelled quickly", elapsed)
	}
}

func TestPacer_Ticks(t *testing.T) {
	p := NewPacer(1000.0)
	for i := 0; i < 5; i++ {
		_ = p.Next()
	}
	if p.Ticks() != 5 {
		t.Errorf("Ticks() = %d, want 5", p.Ticks())
	}
}
