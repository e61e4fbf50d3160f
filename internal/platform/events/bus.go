package events

import "sync"

// Bus fans published values out to every subscriber. Publish never blocks:
// each subscription owns an unbounded queue drained by its own goroutine.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: map[*Subscription[T]]struct{}{}}
}

// Subscription delivers events in publish order on Events.
type Subscription[T any] struct {
	bus    *Bus[T]
	out    chan T
	mu     sync.Mutex
	queue  []T
	signal chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		bus:    b,
		out:    make(chan T),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		close(s.out)
		close(s.exited)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.pump()
	return s
}

func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.enqueue(event)
	}
}

// Close ends every subscription. Queued events are dropped.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription[T], 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = map[*Subscription[T]]struct{}{}
	b.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

func (s *Subscription[T]) Events() <-chan T {
	return s.out
}

func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}

// Drain ends the subscription and returns, in order, the events it had not
// delivered yet.
func (s *Subscription[T]) Drain() []T {
	s.Close()
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.queue
	s.queue = nil
	return pending
}

func (s *Subscription[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription[T]) enqueue(event T) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.exited)
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			s.mu.Lock()
			s.queue = append([]T{next}, s.queue...)
			s.mu.Unlock()
			return
		}
	}
}
