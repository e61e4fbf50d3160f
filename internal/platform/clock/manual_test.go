package clock

import (
	"testing"
	"time"
)

func TestManualAdvanceDeliversEveryDueTick(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewManual(start)
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	got := make(chan time.Time, 10)
	go func() {
		for tick := range ticker.C() {
			got <- tick
		}
	}()

	clk.Advance(3 * time.Second)
	for i := 1; i <= 3; i++ {
		select {
		case tick := <-got:
			if want := start.Add(time.Duration(i) * time.Second); !tick.Equal(want) {
				t.Fatalf("tick %d: got %v want %v", i, tick, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
	}
	if !clk.Now().Equal(start.Add(3 * time.Second)) {
		t.Fatalf("unexpected now: %v", clk.Now())
	}
}

func TestManualStoppedTickerDoesNotBlockAdvance(t *testing.T) {
	t.Parallel()

	clk := NewManual(time.Unix(0, 0))
	ticker := clk.NewTicker(time.Second)
	ticker.Stop()
	ticker.Stop()

	done := make(chan struct{})
	go func() {
		clk.Advance(5 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("advance blocked on a stopped ticker")
	}
	if clk.Tickers() != 0 {
		t.Fatalf("stopped ticker still registered")
	}
}
