package track

// CounterTable counts SYNs per key for the current sampling window.
type CounterTable struct {
	counts map[Key]int
	limit  int
}

func newCounterTable(limit int) *CounterTable {
	return &CounterTable{counts: make(map[Key]int), limit: limit}
}

// RecordSyn increments the counter for k, creating it at zero first when k
// is unseen in this window, and returns the new count. ok is false when the
// table is full and k could not be created; nothing is recorded then.
func (c *CounterTable) RecordSyn(k Key) (count int, ok bool) {
	n, found := c.counts[k]
	if !found && c.limit > 0 && len(c.counts) >= c.limit {
		return 0, false
	}
	n++
	c.counts[k] = n
	return n, true
}

// Count returns the current count for k.
func (c *CounterTable) Count(k Key) (int, bool) {
	n, ok := c.counts[k]
	return n, ok
}

func (c *CounterTable) Remove(k Key) {
	delete(c.counts, k)
}

// ClearAll empties the table and reports how many entries were dropped.
func (c *CounterTable) ClearAll() int {
	n := len(c.counts)
	clear(c.counts)
	return n
}

func (c *CounterTable) Len() int {
	return len(c.counts)
}

// Snapshot copies the current counters.
func (c *CounterTable) Snapshot() map[Key]int {
	out := make(map[Key]int, len(c.counts))
	for k, n := range c.counts {
		out[k] = n
	}
	return out
}
