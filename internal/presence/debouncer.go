package presence

import (
	"sync"
	"time"
)

// Key identifies a pending leave.
type Key struct {
	RoomID        string
	ParticipantID string
}

// Debouncer holds at most one delayed action per key.
type Debouncer struct {
	mu      sync.Mutex
	pending map[Key]*pendingTimer
	perRoom map[string]int
	closed  bool
}

type pendingTimer struct {
	timer *time.Timer
}

// NewDebouncer creates an empty debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{
		pending: make(map[Key]*pendingTimer),
		perRoom: make(map[string]int),
	}
}

// forget drops key. d.mu must be held.
func (d *Debouncer) forget(key Key) {
	delete(d.pending, key)
	if d.perRoom[key.RoomID]--; d.perRoom[key.RoomID] <= 0 {
		delete(d.perRoom, key.RoomID)
	}
}

// Arm schedules action to run after delay, replacing any earlier timer for
// key. When the timer fires, action receives claim: claim returns true and
// forgets the timer only if it is still the one armed for key. An action
// whose claim fails must do nothing.
func (d *Debouncer) Arm(key Key, delay time.Duration, action func(claim func() bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if prev := d.pending[key]; prev != nil {
		prev.timer.Stop()
	} else {
		d.perRoom[key.RoomID]++
	}

	p := &pendingTimer{}
	claim := func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.pending[key] != p {
			return false
		}
		d.forget(key)
		return true
	}
	p.timer = time.AfterFunc(delay, func() { action(claim) })
	d.pending[key] = p
}

// Disarm cancels the pending timer for key and reports whether one was
// pending. A timer that already fired but has not claimed yet loses its
// claim.
func (d *Debouncer) Disarm(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.pending[key]
	if p == nil {
		return false
	}
	p.timer.Stop()
	d.forget(key)
	return true
}

// Pending reports whether a timer is armed for key.
func (d *Debouncer) Pending(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// PendingIn returns the number of armed timers whose key is in roomID.
func (d *Debouncer) PendingIn(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perRoom[roomID]
}

// Len returns the number of armed timers.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels every pending timer. Later Arm calls are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, p := range d.pending {
		p.timer.Stop()
		d.forget(key)
	}
}
