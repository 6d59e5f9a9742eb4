package feed

import (
	"sync"
	"time"
)

// Dedup tracks job uids that have already been processed.
//
// Admit-and-mark is atomic under the mutex so concurrent batches can never
// double-admit the same uid. State is memory-only: a restart forgets
// everything, and re-sent jobs will be delivered again. That is accepted.
//
// By default the set grows for the process lifetime. Sweep offers optional
// windowed eviction for long-running deployments; callers that never sweep
// keep every uid until restart.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time

	now func() time.Time
}

func NewDedup() *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Admit returns true exactly once per uid and marks it seen.
func (d *Dedup) Admit(uid string) bool {
	if uid == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[uid]; ok {
		return false
	}
	d.seen[uid] = d.now()
	return true
}

// Filter runs jobs through Admit and returns the admitted ones in their
// original order.
func (d *Dedup) Filter(jobs []Job) []Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if d.Admit(j.UID) {
			out = append(out, j)
		}
	}
	return out
}

// Len reports the current size of the seen set.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Sweep evicts uids first seen longer than window ago and returns how many
// were removed. A window <= 0 is a no-op.
func (d *Dedup) Sweep(window time.Duration) int {
	if window <= 0 {
		return 0
	}
	cutoff := d.now().Add(-window)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for uid, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, uid)
			n++
		}
	}
	return n
}
