package chat

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angar2/cola-chat-back/internal/models"
	"github.com/angar2/cola-chat-back/internal/presence"
	"github.com/angar2/cola-chat-back/internal/store"
)

type fakeGateway struct {
	mu       sync.Mutex
	bindings map[string]map[string]string // conn -> room -> participant
	events   map[string][]Event
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		bindings: make(map[string]map[string]string),
		events:   make(map[string][]Event),
	}
}

func (g *fakeGateway) Attach(connID, roomID, participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bindings[connID] == nil {
		g.bindings[connID] = make(map[string]string)
	}
	g.bindings[connID][roomID] = participantID
}

func (g *fakeGateway) Detach(connID, roomID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pid, ok := g.bindings[connID][roomID]
	if ok {
		delete(g.bindings[connID], roomID)
	}
	return pid, ok
}

func (g *fakeGateway) ParticipantOf(connID, roomID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pid, ok := g.bindings[connID][roomID]
	return pid, ok
}

func (g *fakeGateway) Rooms(connID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	rooms := make([]string, 0, len(g.bindings[connID]))
	for roomID := range g.bindings[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (g *fakeGateway) Broadcast(roomID string, evt Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[roomID] = append(g.events[roomID], evt)
}

func (g *fakeGateway) named(roomID, name string) []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Event
	for _, evt := range g.events[roomID] {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

// rosterIDs returns the participant ids of the latest roster event.
func (g *fakeGateway) rosterIDs(roomID string) []string {
	rosters := g.named(roomID, EventRoster)
	if len(rosters) == 0 {
		return nil
	}
	roster := rosters[len(rosters)-1].Data.(Roster)
	ids := make([]string, 0, len(roster.Participants))
	for _, p := range roster.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// testClock advances a millisecond on every read so stored timestamps
// are distinct.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc   *Service
	gw    *fakeGateway
	clock *testClock
	db    *store.SQLStore
}

func newTestEnv(t *testing.T, grace time.Duration) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	gw := newFakeGateway()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		ExpiryDays:       7,
		LeaveGracePeriod: grace,
		PageSize:         3,
		BcryptCost:       4,
		IOTimeout:        5 * time.Second,
	}
	svc := NewService(db, db, gw, cfg, zerolog.Nop(), WithClock(clock.Now))
	t.Cleanup(svc.Close)
	return &testEnv{svc: svc, gw: gw, clock: clock, db: db}
}

func (e *testEnv) room(t *testing.T, capacity *int) *models.Room {
	t.Helper()
	room, err := e.svc.CreateRoom(context.Background(), CreateRoomInput{
		Namespace: "general",
		Title:     "lobby",
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return room
}

func intPtr(n int) *int { return &n }

func TestCreateRoom_Validation(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateRoomInput
	}{
		{"password flag without password", CreateRoomInput{Namespace: "n", Title: "t", IsPassword: true}},
		{"password without flag", CreateRoomInput{Namespace: "n", Title: "t", Password: "secret"}},
		{"zero capacity", CreateRoomInput{Namespace: "n", Title: "t", Capacity: intPtr(0)}},
		{"blank title", CreateRoomInput{Namespace: "n", Title: "  "}},
		{"missing namespace", CreateRoomInput{Title: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateRoom(ctx, tc.in)
			require.ErrorIs(t, err, ErrInvalidData)
			require.Equal(t, KindInvalidData, KindOf(err))
		})
	}
}

func TestCreateRoom_StoresHashAndExpiry(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	room, err := env.svc.CreateRoom(ctx, CreateRoomInput{
		Namespace:  "general",
		Title:      "secret club",
		Capacity:   intPtr(4),
		IsPassword: true,
		Password:   "hunter2",
	})
	req.NoError(err)
	req.Empty(room.PasswordHash)
	req.Equal(room.CreatedAt.AddDate(0, 0, 7), room.ExpiresAt)

	hash, err := env.db.GetRoomPasswordHash(ctx, room.ID)
	req.NoError(err)
	req.NotEqual("hunter2", hash)

	req.ErrorIs(env.svc.ValidateRoomEntry(ctx, room.ID, "wrong", ""), ErrUnauthorized)
	req.NoError(env.svc.ValidateRoomEntry(ctx, room.ID, "hunter2", ""))
}

func TestGetRoom_ExpiryIsRecorded(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	_, err := env.svc.GetRoom(ctx, "missing")
	req.ErrorIs(err, ErrRoomNotFound)

	// When the room outlives its expiry
	env.clock.Advance(8 * 24 * time.Hour)
	_, err = env.svc.GetRoom(ctx, room.ID)

	// Then the failure is an expired not-found and the flag is stored
	req.ErrorIs(err, ErrRoomExpired)
	req.ErrorIs(err, ErrNotFound)
	stored, err := env.db.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.True(stored.IsExpired)

	_, err = env.svc.Join(ctx, room.ID, "", "c1")
	req.ErrorIs(err, ErrRoomExpired)
	_, err = env.svc.GetMessagePage(ctx, room.ID, 1, "p")
	req.ErrorIs(err, ErrRoomExpired)

	rooms, err := env.svc.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 1, "listing skips the expiry check")
}

func TestJoin_NewParticipantIsAnnounced(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	req.NotEmpty(p.Nickname)
	req.True(p.IsActive)

	joined := env.gw.named(room.ID, EventJoined)
	req.Len(joined, 1)
	msg := joined[0].Data.(*models.Message)
	req.Equal(models.MessageSystem, msg.Type)
	req.Equal(p.ID, msg.ParticipantID)
	req.Equal(p.Nickname+" joined the room.", msg.Content)
	req.Equal([]string{p.ID}, env.gw.rosterIDs(room.ID))

	pid, ok := env.gw.ParticipantOf("c1", room.ID)
	req.True(ok)
	req.Equal(p.ID, pid)
}

func TestJoin_UnknownParticipant(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	room := env.room(t, nil)

	_, err := env.svc.Join(context.Background(), room.ID, "nobody", "c1")
	require.ErrorIs(t, err, ErrParticipantNotFound)
	require.Empty(t, env.gw.named(room.ID, EventRoster))
}

func TestSession_TabsShareOnePresence(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()
	room := env.room(t, nil)

	// Given one participant with two tabs
	p, err := env.svc.Join(ctx, room.ID, "", "tab1")
	req.NoError(err)
	_, err = env.svc.Join(ctx, room.ID, p.ID, "tab2")
	req.NoError(err)
	req.Len(env.gw.named(room.ID, EventJoined), 1)
	req.Len(env.gw.named(room.ID, EventRoster), 2)

	// When one tab closes
	env.svc.Leave(ctx, room.ID, "tab1")
	time.Sleep(80 * time.Millisecond)

	// Then nobody is told they left
	req.Empty(env.gw.named(room.ID, EventLeft))
	req.Equal([]string{p.ID}, env.svc.presence.OnlineParticipantIDs(room.ID))

	// When the last tab closes the leave fires after the grace period
	env.svc.Leave(ctx, room.ID, "tab2")
	req.Eventually(func() bool { return len(env.gw.named(room.ID, EventLeft)) == 1 }, time.Second, 5*time.Millisecond)

	left := env.gw.named(room.ID, EventLeft)[0].Data.(*models.Message)
	req.Equal(models.MessageSystem, left.Type)
	req.Equal(p.Nickname+" left the room.", left.Content)
	req.Eventually(func() bool { return len(env.gw.rosterIDs(room.ID)) == 0 }, time.Second, 5*time.Millisecond)

	stored, err := env.db.GetParticipant(ctx, p.ID)
	req.NoError(err)
	req.False(stored.IsActive)
	req.NotNil(stored.DeletedAt)
}

func TestSession_ReconnectWithinGraceIsSilent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	env.svc.Leave(ctx, room.ID, "c1")
	req.Equal(1, env.svc.leaves.Len())

	// When the participant comes back before the timer fires
	_, err = env.svc.Join(ctx, room.ID, p.ID, "c2")
	req.NoError(err)

	// Then there is no second joined notice and the timer is gone
	req.Len(env.gw.named(room.ID, EventJoined), 1)
	req.Empty(env.gw.named(room.ID, EventLeft))
	req.Zero(env.svc.leaves.Len())
	req.Equal([]string{p.ID}, env.gw.rosterIDs(room.ID))
}

func TestSession_LeaveUnknownBindingIsNoop(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	room := env.room(t, nil)

	env.svc.Leave(context.Background(), room.ID, "ghost")
	require.Zero(t, env.svc.leaves.Len())
	require.Empty(t, env.gw.named(room.ID, EventRoster))
}

func TestSession_CapacityScenario(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()
	room := env.room(t, intPtr(2))

	a, err := env.svc.Join(ctx, room.ID, "", "ca")
	req.NoError(err)
	b, err := env.svc.Join(ctx, room.ID, "", "cb")
	req.NoError(err)
	req.Equal([]string{a.ID, b.ID}, env.gw.rosterIDs(room.ID))

	_, err = env.svc.Join(ctx, room.ID, "", "cc")
	req.ErrorIs(err, ErrCapacityExceeded)
	req.Equal(KindCapacityExceeded, KindOf(err))
	req.ErrorIs(env.svc.ValidateRoomEntry(ctx, room.ID, "", ""), ErrCapacityExceeded)

	// Members already online are exempt
	req.NoError(env.svc.ValidateRoomEntry(ctx, room.ID, "", a.ID))
	_, err = env.svc.Join(ctx, room.ID, a.ID, "ca2")
	req.NoError(err)

	// When A closes every connection and the grace period passes
	env.svc.Leave(ctx, room.ID, "ca")
	env.svc.Leave(ctx, room.ID, "ca2")
	req.Eventually(func() bool {
		ids := env.gw.rosterIDs(room.ID)
		return len(ids) == 1 && ids[0] == b.ID
	}, time.Second, 5*time.Millisecond)

	// Then C fits
	c, err := env.svc.Join(ctx, room.ID, "", "cc")
	req.NoError(err)
	req.Equal([]string{b.ID, c.ID}, env.gw.rosterIDs(room.ID))
}

func TestSession_GraceHoldsCapacitySlot(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, intPtr(1))

	// Given A fills the room and drops its only connection
	a, err := env.svc.Join(ctx, room.ID, "", "ca")
	req.NoError(err)
	env.svc.Leave(ctx, room.ID, "ca")
	req.Zero(env.svc.presence.OnlineCount(room.ID))

	// When B tries to take the slot during A's grace period
	b, err := env.svc.createParticipant(ctx)
	req.NoError(err)
	_, err = env.svc.Join(ctx, room.ID, b.ID, "cb")
	req.ErrorIs(err, ErrCapacityExceeded)
	_, err = env.svc.Join(ctx, room.ID, "", "cc")
	req.ErrorIs(err, ErrCapacityExceeded)
	req.ErrorIs(env.svc.ValidateRoomEntry(ctx, room.ID, "", b.ID), ErrCapacityExceeded)

	// Then A still gets back in silently
	req.NoError(env.svc.ValidateRoomEntry(ctx, room.ID, "", a.ID))
	_, err = env.svc.Join(ctx, room.ID, a.ID, "ca2")
	req.NoError(err)
	req.Len(env.gw.named(room.ID, EventJoined), 1)
	req.Empty(env.gw.named(room.ID, EventLeft))
	req.Equal([]string{a.ID}, env.gw.rosterIDs(room.ID))
	req.Zero(env.svc.leaves.PendingIn(room.ID))
}

func TestJoin_FailedRebindKeepsBinding(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)

	// When the connection asks to become an unknown participant
	_, err = env.svc.Join(ctx, room.ID, "nobody", "c1")
	req.ErrorIs(err, ErrParticipantNotFound)

	// Then it still acts as the old one
	pid, ok := env.gw.ParticipantOf("c1", room.ID)
	req.True(ok)
	req.Equal(p.ID, pid)
	req.True(env.svc.presence.IsOnline(room.ID, p.ID))
	req.Zero(env.svc.leaves.Len())
	_, err = env.svc.SendMessage(ctx, room.ID, "c1", "still here")
	req.NoError(err)
}

func TestJoin_RebindLeavesAsOldParticipant(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	q, err := env.svc.createParticipant(ctx)
	req.NoError(err)

	_, err = env.svc.Join(ctx, room.ID, q.ID, "c1")
	req.NoError(err)

	pid, ok := env.gw.ParticipantOf("c1", room.ID)
	req.True(ok)
	req.Equal(q.ID, pid)
	req.False(env.svc.presence.IsOnline(room.ID, p.ID))
	req.True(env.svc.leaves.Pending(presence.Key{RoomID: room.ID, ParticipantID: p.ID}))
	req.Equal([]string{q.ID}, env.gw.rosterIDs(room.ID))
}

func TestSession_ConcurrentJoinsRespectCapacity(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, intPtr(3))

	// Given participants that exist before the rush
	ids := make([]string, 12)
	for i := range ids {
		p, err := env.svc.createParticipant(ctx)
		req.NoError(err)
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, refused := 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.svc.Join(ctx, room.ID, id, "conn-"+id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if KindOf(err) == KindCapacityExceeded {
				refused++
			}
		}(id)
	}
	wg.Wait()

	req.Equal(3, admitted)
	req.Equal(9, refused)
	req.Equal(3, env.svc.presence.OnlineCount(room.ID))
}

func TestSession_RejoinReactivates(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, 20*time.Millisecond)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	env.svc.Leave(ctx, room.ID, "c1")
	req.Eventually(func() bool { return len(env.gw.named(room.ID, EventLeft)) == 1 }, time.Second, 5*time.Millisecond)

	back, err := env.svc.Join(ctx, room.ID, p.ID, "c2")
	req.NoError(err)
	req.Equal(p.ID, back.ID)
	req.Equal(p.Nickname, back.Nickname)
	req.True(back.IsActive)
	req.Nil(back.DeletedAt)
	req.Len(env.gw.named(room.ID, EventJoined), 2)
}

func TestSession_SendMessageAndAlert(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	_, err := env.svc.SendMessage(ctx, room.ID, "c1", "hello")
	req.ErrorIs(err, ErrNotJoined)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)

	_, err = env.svc.SendMessage(ctx, room.ID, "c1", "   ")
	req.ErrorIs(err, ErrInvalidData)

	msg, err := env.svc.SendMessage(ctx, room.ID, "c1", " hello ")
	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.Equal(models.MessageChat, msg.Type)
	req.Equal(p.Nickname, msg.Nickname)

	alert, err := env.svc.SendAlert(ctx, room.ID, "c1", "bell")
	req.NoError(err)
	req.Equal(models.MessageAlert, alert.Type)

	req.Len(env.gw.named(room.ID, EventChat), 1)
	req.Len(env.gw.named(room.ID, EventAlert), 1)
	req.Equal(msg.ID, env.gw.named(room.ID, EventChat)[0].Data.(*models.Message).ID)
}

func TestSession_PostToExpiredRoom(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	before, err := env.db.ListMessages(ctx, room.ID, nil, 0, 100)
	req.NoError(err)

	// When the room expires under a bound connection
	env.clock.Advance(8 * 24 * time.Hour)

	// Then both kinds of post fail and nothing is appended
	_, err = env.svc.SendMessage(ctx, room.ID, "c1", "hello")
	req.ErrorIs(err, ErrRoomExpired)
	req.Equal(KindNotFound, KindOf(err))
	_, err = env.svc.SendAlert(ctx, room.ID, "c1", "bell")
	req.ErrorIs(err, ErrRoomExpired)

	after, err := env.db.ListMessages(ctx, room.ID, nil, 0, 100)
	req.NoError(err)
	req.Len(after, len(before))
	req.Empty(env.gw.named(room.ID, EventChat))
	req.Empty(env.gw.named(room.ID, EventAlert))

	stored, err := env.db.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.True(stored.IsExpired)
	pid, ok := env.gw.ParticipantOf("c1", room.ID)
	req.True(ok)
	req.Equal(p.ID, pid)
}

func TestGetMessagePage_AnchoredToFirstSeen(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	// Given A talks before B arrives
	a, err := env.svc.Join(ctx, room.ID, "", "ca")
	req.NoError(err)
	for _, content := range []string{"one", "two", "three"} {
		_, err := env.svc.SendMessage(ctx, room.ID, "ca", content)
		req.NoError(err)
	}
	b, err := env.svc.Join(ctx, room.ID, "", "cb")
	req.NoError(err)
	for _, content := range []string{"four", "five", "six", "seven"} {
		_, err := env.svc.SendMessage(ctx, room.ID, "ca", content)
		req.NoError(err)
	}

	// Then B's first page is the newest three, oldest first
	page, err := env.svc.GetMessagePage(ctx, room.ID, 1, b.ID)
	req.NoError(err)
	req.Equal([]string{"five", "six", "seven"}, contents(page))

	// And B's history stops at B's joined notice
	page, err = env.svc.GetMessagePage(ctx, room.ID, 2, b.ID)
	req.NoError(err)
	req.Equal([]string{b.Nickname + " joined the room.", "four"}, contents(page))
	for _, msg := range page {
		req.False(msg.SentAt.Before(page[0].SentAt))
	}

	page, err = env.svc.GetMessagePage(ctx, room.ID, 3, b.ID)
	req.NoError(err)
	req.Empty(page)

	// A sees the whole room from A's own joined notice
	page, err = env.svc.GetMessagePage(ctx, room.ID, 3, a.ID)
	req.NoError(err)
	req.Equal([]string{a.Nickname + " joined the room.", "one", "two"}, contents(page))

	page, err = env.svc.GetMessagePage(ctx, room.ID, 1, "")
	req.NoError(err)
	req.Empty(page)

	_, err = env.svc.GetMessagePage(ctx, room.ID, 0, b.ID)
	req.ErrorIs(err, ErrInvalidData)
	_, err = env.svc.GetMessagePage(ctx, room.ID, math.MaxInt, b.ID)
	req.ErrorIs(err, ErrInvalidData)
	page, err = env.svc.GetMessagePage(ctx, room.ID, MaxPage, b.ID)
	req.NoError(err)
	req.Empty(page)
}

func TestRenameParticipant_KeepsSnapshot(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	p, err := env.svc.Join(ctx, room.ID, "", "c1")
	req.NoError(err)
	_, err = env.svc.SendMessage(ctx, room.ID, "c1", "before")
	req.NoError(err)

	renamed, err := env.svc.RenameParticipant(ctx, p.ID, "  new name ")
	req.NoError(err)
	req.Equal("new name", renamed.Nickname)

	msg, err := env.svc.SendMessage(ctx, room.ID, "c1", "after")
	req.NoError(err)
	req.Equal("new name", msg.Nickname)

	page, err := env.svc.GetMessagePage(ctx, room.ID, 1, p.ID)
	req.NoError(err)
	req.Equal(p.Nickname, page[1].Nickname)

	_, err = env.svc.RenameParticipant(ctx, "nobody", "x")
	req.ErrorIs(err, ErrParticipantNotFound)
	_, err = env.svc.RenameParticipant(ctx, p.ID, "")
	req.ErrorIs(err, ErrInvalidData)
}

func TestDisconnect_LeavesEveryRoom(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	r1, r2 := env.room(t, nil), env.room(t, nil)

	p, err := env.svc.Join(ctx, r1.ID, "", "c1")
	req.NoError(err)
	_, err = env.svc.Join(ctx, r2.ID, p.ID, "c1")
	req.NoError(err)

	env.svc.Disconnect(ctx, "c1")

	req.False(env.svc.presence.IsOnline(r1.ID, p.ID))
	req.False(env.svc.presence.IsOnline(r2.ID, p.ID))
	req.Equal(2, env.svc.leaves.Len())
	req.Empty(env.gw.Rooms("c1"))
}

func TestSession_LeaveIsScopedToRoom(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, 20*time.Millisecond)
	ctx := context.Background()
	x, y := env.room(t, nil), env.room(t, nil)

	// Given one participant in rooms X and Y
	p, err := env.svc.Join(ctx, x.ID, "", "cx")
	req.NoError(err)
	_, err = env.svc.Join(ctx, y.ID, p.ID, "cy")
	req.NoError(err)

	// When it leaves Y for good
	env.svc.Leave(ctx, y.ID, "cy")
	req.Eventually(func() bool { return len(env.gw.named(y.ID, EventLeft)) == 1 }, time.Second, 5*time.Millisecond)

	// Then only the Y membership closes and the participant stays active
	my, err := env.db.GetMembership(ctx, y.ID, p.ID)
	req.NoError(err)
	req.False(my.IsActive)
	req.NotNil(my.LeftAt)
	mx, err := env.db.GetMembership(ctx, x.ID, p.ID)
	req.NoError(err)
	req.True(mx.IsActive)

	stored, err := env.db.GetParticipant(ctx, p.ID)
	req.NoError(err)
	req.True(stored.IsActive)
	req.Nil(stored.DeletedAt)
	_, err = env.svc.SendMessage(ctx, x.ID, "cx", "still in X")
	req.NoError(err)

	// When it leaves X too
	env.svc.Leave(ctx, x.ID, "cx")
	req.Eventually(func() bool { return len(env.gw.named(x.ID, EventLeft)) == 1 }, time.Second, 5*time.Millisecond)

	// Then the participant is deactivated
	stored, err = env.db.GetParticipant(ctx, p.ID)
	req.NoError(err)
	req.False(stored.IsActive)
}

func TestRoomParticipants(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	room := env.room(t, nil)

	a, err := env.svc.Join(ctx, room.ID, "", "ca")
	req.NoError(err)
	b, err := env.svc.Join(ctx, room.ID, "", "cb")
	req.NoError(err)

	roster, err := env.svc.RoomParticipants(ctx, room.ID)
	req.NoError(err)
	req.Len(roster, 2)
	req.Equal(a.ID, roster[0].ID)
	req.Equal(b.ID, roster[1].ID)
	req.Equal(map[string]int{room.ID: 2}, env.svc.OnlineCounts())
}

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Content)
	}
	return out
}
