package track

import (
	"container/list"
	"time"
)

// Entry is a banned key and the moment the ban started.
type Entry struct {
	Key     Key
	BanTime time.Time
}

// Queue keeps banned keys oldest first. Entries are only ever appended with
// a non-decreasing BanTime, so list order is ban-time order.
//
// A key is first reserved while its ban request is in flight, then activated
// once the request returns. Reserved keys count as banned for Contains and
// the size limit, but ExpireDue, Remove and Entries do not see them.
type Queue struct {
	order   *list.List
	index   map[Key]*list.Element
	pending map[Key]struct{}
	limit   int
}

func newQueue(limit int) *Queue {
	return &Queue{
		order:   list.New(),
		index:   make(map[Key]*list.Element),
		pending: make(map[Key]struct{}),
		limit:   limit,
	}
}

// Reserve claims k for banning. It returns false when k is already reserved
// or banned, or the queue is full.
func (q *Queue) Reserve(k Key) bool {
	if q.Contains(k) {
		return false
	}
	if q.limit > 0 && q.Len() >= q.limit {
		return false
	}
	q.pending[k] = struct{}{}
	return true
}

// Activate appends a reserved k with BanTime now, making it releasable and
// expirable. It returns false when k is not reserved.
func (q *Queue) Activate(k Key, now time.Time) bool {
	if _, ok := q.pending[k]; !ok {
		return false
	}
	delete(q.pending, k)
	q.push(k, now)
	return true
}

// Promote reserves and activates k in one step.
func (q *Queue) Promote(k Key, now time.Time) bool {
	return q.Reserve(k) && q.Activate(k, now)
}

// push appends k, clamping now to the tail's BanTime.
func (q *Queue) push(k Key, now time.Time) {
	if back := q.order.Back(); back != nil {
		if last := back.Value.(Entry).BanTime; now.Before(last) {
			now = last
		}
	}
	q.index[k] = q.order.PushBack(Entry{Key: k, BanTime: now})
}

// ExpireDue removes and returns, oldest first, every leading entry whose
// probation has elapsed at now. The scan stops at the first entry still on
// probation.
func (q *Queue) ExpireDue(now time.Time, probation time.Duration) []Entry {
	var out []Entry
	for e := q.order.Front(); e != nil; e = q.order.Front() {
		ent := e.Value.(Entry)
		if now.Sub(ent.BanTime) < probation {
			break
		}
		q.order.Remove(e)
		delete(q.index, ent.Key)
		out = append(out, ent)
	}
	return out
}

// Remove drops an active k wherever it sits in the queue.
func (q *Queue) Remove(k Key) (Entry, bool) {
	e, ok := q.index[k]
	if !ok {
		return Entry{}, false
	}
	q.order.Remove(e)
	delete(q.index, k)
	return e.Value.(Entry), true
}

// Contains reports whether k is reserved or banned.
func (q *Queue) Contains(k Key) bool {
	if _, ok := q.pending[k]; ok {
		return true
	}
	_, ok := q.index[k]
	return ok
}

// Len counts reserved and active entries.
func (q *Queue) Len() int {
	return q.order.Len() + len(q.pending)
}

// ClearAll forgets every entry without releasing anything.
func (q *Queue) ClearAll() int {
	n := q.Len()
	q.order.Init()
	clear(q.index)
	clear(q.pending)
	return n
}

// Entries copies the active entries in ban-time order.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Entry))
	}
	return out
}
