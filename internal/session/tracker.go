// Package session groups surveillance records sharing a callsign into
// time-bounded flight sessions. A callsign that goes quiet for longer than
// the timeout and then reappears starts a new session, so the same tail
// flying the same route twice in a day yields two sessions.
package session

import (
	"sync"
	"time"
)

// DefaultTimeout is the reference quiet period after which a callsign's
// session is considered closed.
const DefaultTimeout = 1200 * time.Second

// sweepInterval is how many assignments pass between inline sweeps of the
// in-memory index. Sweeping keeps the index bounded by the number of
// callsigns active inside one timeout window instead of growing forever.
const sweepInterval = 1024

// Assignment is the tracker's decision for one record: which session the
// record belongs to and whether that session was just opened.
type Assignment struct {
	ID        int64
	Callsign  string
	Opened    bool
	FirstSeen time.Time
	LastSeen  time.Time
}

type entry struct {
	id        int64
	firstSeen time.Time
	lastSeen  time.Time
}

// Tracker holds the callsign -> open-session index. Safe for concurrent
// use, although the ingestion loop is the only writer in practice.
type Tracker struct {
	mu      sync.Mutex
	timeout time.Duration
	index   map[string]*entry
	nextID  int64
	assigns int
}

// New creates a tracker. nextID seeds session id allocation; pass one past
// the highest id already persisted so restarts never reuse an id.
func New(timeout time.Duration, nextID int64) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if nextID < 1 {
		nextID = 1
	}
	return &Tracker{
		timeout: timeout,
		index:   make(map[string]*entry),
		nextID:  nextID,
	}
}

// Assign maps a record with the given callsign and timestamp onto a
// session. Blank callsigns are not grouped: ok is false and the record
// still updates aircraft state independently.
//
// A gap exactly equal to the timeout continues the session; only a
// strictly greater gap opens a new one.
func (t *Tracker) Assign(callsign string, at time.Time) (Assignment, bool) {
	if callsign == "" {
		return Assignment{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.assigns++
	if t.assigns%sweepInterval == 0 {
		t.sweep(at)
	}

	e, exists := t.index[callsign]
	if exists && at.Sub(e.lastSeen) <= t.timeout {
		if at.After(e.lastSeen) {
			e.lastSeen = at
		}
		return Assignment{
			ID:        e.id,
			Callsign:  callsign,
			FirstSeen: e.firstSeen,
			LastSeen:  e.lastSeen,
		}, true
	}

	// No open session, or the quiet period elapsed: open a fresh one. The
	// old session closes implicitly; there is nothing to mutate.
	e = &entry{id: t.nextID, firstSeen: at, lastSeen: at}
	t.nextID++
	t.index[callsign] = e

	return Assignment{
		ID:        e.id,
		Callsign:  callsign,
		Opened:    true,
		FirstSeen: at,
		LastSeen:  at,
	}, true
}

// sweep drops index entries whose session already timed out. Caller holds
// the lock.
func (t *Tracker) sweep(now time.Time) {
	for cs, e := range t.index {
		if now.Sub(e.lastSeen) > t.timeout {
			delete(t.index, cs)
		}
	}
}

// Len returns the number of callsigns currently indexed.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}
