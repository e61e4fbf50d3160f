package clock

import (
	"sync"
	"time"
)

// Manual is a Clock driven by Advance. Ticks are delivered synchronously:
// Advance returns only after every due tick was received by its owner or the
// ticker was stopped.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		owner:  m,
		period: d,
		next:   m.now.Add(d),
		ch:     make(chan time.Time),
		done:   make(chan struct{}),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Set moves the clock without firing tickers.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	m.now = now.UTC()
	for _, t := range m.tickers {
		t.next = m.now.Add(t.period)
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d, firing due ticks in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	active := append([]*manualTicker(nil), m.tickers...)
	m.mu.Unlock()

	for _, t := range active {
		for {
			m.mu.Lock()
			due := t.next
			if due.After(now) {
				m.mu.Unlock()
				break
			}
			t.next = due.Add(t.period)
			m.mu.Unlock()
			select {
			case t.ch <- due:
			case <-t.done:
			}
			select {
			case <-t.done:
			default:
				continue
			}
			break
		}
	}
}

// Tickers reports how many tickers are live.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *Manual) remove(t *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.tickers {
		if item == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTicker struct {
	owner  *Manual
	period time.Duration
	next   time.Time
	ch     chan time.Time
	done   chan struct{}
	once   sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.once.Do(func() {
		close(t.done)
		t.owner.remove(t)
	})
}
