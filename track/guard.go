package track

import "sync"

// Tables is the shared state handed to Guard.Do callbacks. The pointers
// must not be retained past the callback.
type Tables struct {
	Counters  *CounterTable
	Blacklist *Queue

	// Stopped is set while the owner is shut down; callers must not start
	// new tracking while it is true.
	Stopped bool
}

// Guard owns the counter table and blacklist queue behind one mutex.
type Guard struct {
	mu sync.Mutex
	t  Tables
}

// NewGuard builds empty tables in the stopped state. A limit of zero means
// unbounded.
func NewGuard(maxCounting, maxBanned int) *Guard {
	return &Guard{t: Tables{
		Counters:  newCounterTable(maxCounting),
		Blacklist: newQueue(maxBanned),
		Stopped:   true,
	}}
}

// Do runs fn with the lock held.
func (g *Guard) Do(fn func(t *Tables)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.t)
}
