package session

import "sync"

// Surface holds the most recent snapshot and notifies subscribers on change.
// Snapshots with a revision at or below the current one are ignored.
type Surface struct {
	notify sync.Mutex

	mu     sync.Mutex
	cur    Snapshot
	nextID int
	subs   map[int]func(Snapshot)
}

func NewSurface() *Surface {
	return &Surface{
		cur:  Snapshot{State: StateIdle},
		subs: make(map[int]func(Snapshot)),
	}
}

// Publish stores snap and calls every subscriber synchronously. Subscribers
// must not publish or unsubscribe from inside the callback.
func (s *Surface) Publish(snap Snapshot) bool {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	if snap.Revision <= s.cur.Revision {
		s.mu.Unlock()
		return false
	}
	s.cur = snap
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return true
}

func (s *Surface) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Subscribe registers fn for future snapshots.
func (s *Surface) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.add(fn)
	s.mu.Unlock()
	return s.remover(id)
}

func (s *Surface) add(fn func(Snapshot)) int {
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return id
}

func (s *Surface) remover(id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.notify.Lock()
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			s.notify.Unlock()
		})
	}
}

// Watch returns a channel receiving the current snapshot followed by every
// later one. When the reader falls behind the oldest pending snapshot is
// dropped, so the latest one is always delivered. stop closes the channel.
func (s *Surface) Watch(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	deliver := func(snap Snapshot) {
		for {
			select {
			case ch <- snap:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}

	s.notify.Lock()
	s.mu.Lock()
	id := s.add(deliver)
	cur := s.cur
	s.mu.Unlock()
	deliver(cur)
	s.notify.Unlock()

	unsubscribe := s.remover(id)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(ch)
		})
	}
}
