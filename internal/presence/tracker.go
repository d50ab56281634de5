// Package presence tracks which participants are connected to which rooms
// and debounces their departures.
package presence

import (
	"hash/fnv"
	"sort"
	"sync"
)

const stripeCount = 64

// Tracker maps room -> participant -> live connection ids. Rooms are
// spread over lock stripes; every read and write of a room happens under
// its stripe's lock.
type Tracker struct {
	stripes [stripeCount]stripe
}

type stripe struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	seq     uint64
	entries map[string]*entry
}

type entry struct {
	since uint64 // order of first connection
	conns map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.stripes {
		t.stripes[i].rooms = make(map[string]*room)
	}
	return t
}

func (t *Tracker) stripeFor(roomID string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &t.stripes[h.Sum32()%stripeCount]
}

// Room is a view of one room's presence, valid only inside Update.
type Room struct {
	id string
	s  *stripe
}

// Update runs fn with exclusive access to the room's presence. fn must
// not block or do I/O.
func (t *Tracker) Update(roomID string, fn func(r *Room)) {
	s := t.stripeFor(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Room{id: roomID, s: s})
}

// ID returns the room id.
func (r *Room) ID() string {
	return r.id
}

// AddConnection records connID for participantID. Adding a known
// connection is a no-op.
func (r *Room) AddConnection(participantID, connID string) {
	rm := r.s.rooms[r.id]
	if rm == nil {
		rm = &room{entries: make(map[string]*entry)}
		r.s.rooms[r.id] = rm
	}
	e := rm.entries[participantID]
	if e == nil {
		rm.seq++
		e = &entry{since: rm.seq, conns: make(map[string]struct{})}
		rm.entries[participantID] = e
	}
	e.conns[connID] = struct{}{}
}

// RemoveConnection drops connID and reports how many connections the
// participant still has. Empty entries and rooms are pruned.
func (r *Room) RemoveConnection(participantID, connID string) int {
	rm := r.s.rooms[r.id]
	if rm == nil {
		return 0
	}
	e := rm.entries[participantID]
	if e == nil {
		return 0
	}
	delete(e.conns, connID)
	left := len(e.conns)
	if left == 0 {
		delete(rm.entries, participantID)
		if len(rm.entries) == 0 {
			delete(r.s.rooms, r.id)
		}
	}
	return left
}

// IsOnline reports whether the participant has at least one connection.
func (r *Room) IsOnline(participantID string) bool {
	rm := r.s.rooms[r.id]
	if rm == nil {
		return false
	}
	_, ok := rm.entries[participantID]
	return ok
}

// OnlineCount returns the number of distinct online participants.
func (r *Room) OnlineCount() int {
	rm := r.s.rooms[r.id]
	if rm == nil {
		return 0
	}
	return len(rm.entries)
}

// OnlineParticipantIDs returns online participants ordered by when they
// first connected.
func (r *Room) OnlineParticipantIDs() []string {
	rm := r.s.rooms[r.id]
	if rm == nil {
		return []string{}
	}
	ids := make([]string, 0, len(rm.entries))
	for id := range rm.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return rm.entries[ids[i]].since < rm.entries[ids[j]].since
	})
	return ids
}

// IsOnline reports whether the participant is online in the room.
func (t *Tracker) IsOnline(roomID, participantID string) bool {
	var online bool
	t.Update(roomID, func(r *Room) { online = r.IsOnline(participantID) })
	return online
}

// OnlineCount returns the number of online participants in the room.
func (t *Tracker) OnlineCount(roomID string) int {
	var n int
	t.Update(roomID, func(r *Room) { n = r.OnlineCount() })
	return n
}

// OnlineParticipantIDs returns the room's online participants in
// first-connection order.
func (t *Tracker) OnlineParticipantIDs(roomID string) []string {
	var ids []string
	t.Update(roomID, func(r *Room) { ids = r.OnlineParticipantIDs() })
	return ids
}

// Snapshot returns the online participant count of every non-empty room.
// Stripes are visited one at a time, so the result is not a single
// consistent cut.
func (t *Tracker) Snapshot() map[string]int {
	counts := make(map[string]int)
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		for id, rm := range s.rooms {
			counts[id] = len(rm.entries)
		}
		s.mu.Unlock()
	}
	return counts
}
