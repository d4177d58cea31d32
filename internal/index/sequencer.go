package index

import "sync"

// sequencer orders units touching the same path. Each Enter call gets a
// ticket behind the previous holder for that path, so units for one path run
// strictly in the order they entered while other paths proceed freely.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[string]chan struct{})}
}

var closedCh = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Enter takes a ticket for path. The caller waits on the returned channel
// before touching the path and calls leave when done.
func (s *sequencer) Enter(path string) (wait <-chan struct{}, leave func()) {
	own := make(chan struct{})

	s.mu.Lock()
	prev, ok := s.tails[path]
	s.tails[path] = own
	s.mu.Unlock()

	if !ok {
		prev = closedCh
	}

	var once sync.Once
	return prev, func() {
		once.Do(func() {
			s.mu.Lock()
			if s.tails[path] == own {
				delete(s.tails, path)
			}
			s.mu.Unlock()
			close(own)
		})
	}
}

// Len returns the number of paths with a ticket outstanding.
func (s *sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
