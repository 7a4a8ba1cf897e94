package state

import "sync"

// Subject fans published values out to any number of subscribers.
//
// Every subscriber owns an unbounded FIFO drained by its own goroutine, so
// Publish never blocks on a slow reader and each subscriber sees values in
// publish order. A value subject also replays the latest value to new
// subscribers.
type Subject[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	replay bool
	last   T
	has    bool
	closed bool
}

// NewSubject returns a subject that only delivers values published after
// a subscriber joined.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[*Subscription[T]]struct{})}
}

// NewValueSubject returns a subject holding initial as its current value.
// New subscribers receive the current value first.
func NewValueSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		replay: true,
		last:   initial,
		has:    true,
	}
}

// Publish delivers v to every current subscriber.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.last = v
	s.has = true
	for sub := range s.subs {
		sub.push(v)
	}
}

// Value returns the most recently published value and whether there is one.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.has
}

// Subscribe registers a new subscriber. The caller must Close it when done.
// Subscribing to a closed subject returns an already closed subscription.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	sub := newSubscription(s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		sub.finish()
		return sub
	}
	if s.replay && s.has {
		sub.push(s.last)
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Close ends every subscription after its queued values are delivered.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		sub.finish()
	}
	s.subs = nil
}

func (s *Subject[T]) remove(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Subscription is one subscriber's view of a Subject.
// C is closed after the subject closes and every queued value was received,
// or after Close.
type Subscription[T any] struct {
	C <-chan T

	subject *Subject[T]
	out     chan T
	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	queue    []T
	finished bool
	once     sync.Once
}

func newSubscription[T any](s *Subject[T]) *Subscription[T] {
	out := make(chan T)
	sub := &Subscription[T]{
		C:       out,
		subject: s,
		out:     out,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sub.drain()
	return sub
}

func (sub *Subscription[T]) push(v T) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, v)
	sub.mu.Unlock()
	sub.wake()
}

// finish marks the queue complete; the drain goroutine exits once empty.
func (sub *Subscription[T]) finish() {
	sub.mu.Lock()
	sub.finished = true
	sub.mu.Unlock()
	sub.wake()
}

func (sub *Subscription[T]) wake() {
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *Subscription[T]) drain() {
	defer close(sub.done)
	defer close(sub.out)

	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			finished := sub.finished
			sub.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-sub.notify:
				continue
			case <-sub.stop:
				return
			}
		}
		v := sub.queue[0]
		var zero T
		sub.queue[0] = zero
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- v:
		case <-sub.stop:
			return
		}
	}
}

// Close unsubscribes and discards anything still queued.
// It waits for the drain goroutine to exit.
func (sub *Subscription[T]) Close() {
	sub.once.Do(func() {
		sub.subject.remove(sub)
		close(sub.stop)
	})
	<-sub.done
}
