package colachat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angar2/cola-chat-back/internal/api"
	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/config"
	"github.com/angar2/cola-chat-back/internal/models"
	"github.com/angar2/cola-chat-back/internal/store"
	"github.com/angar2/cola-chat-back/internal/ws"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	stores, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "client.db"), "", time.Hour)
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	hub := ws.NewHub(ws.Options{AllowedOrigins: []string{"*"}}, zerolog.Nop())
	cfg := chat.DefaultConfig()
	cfg.BcryptCost = 4
	svc := chat.NewService(stores.Data, stores.Messages, hub, cfg, zerolog.Nop())
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), &config.Config{AllowedOrigins: []string{"*"}}, svc, stores, hub))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	t.Setenv("COLACHAT_CONFIG", t.TempDir())
	return NewClient(srv.URL)
}

func nextMatching(t *testing.T, s *Session, match func(Frame) bool) Frame {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		f, err := s.Next()
		require.NoError(t, err)
		if match(f) {
			return f
		}
	}
}

func TestClient_Rooms(t *testing.T) {
	req := require.New(t)
	c := newTestClient(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, CreateRoomRequest{Namespace: "general", Title: "lobby", IsPassword: true, Password: "cola"})
	req.NoError(err)

	got, err := c.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal("lobby", got.Title)

	rooms, err := c.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 1)

	err = c.CheckAccess(ctx, room.ID, "wrong")
	var apiErr *Error
	req.ErrorAs(err, &apiErr)
	req.Equal(403, apiErr.Status)
	req.Equal(chat.CodeUnauthorized, apiErr.Code)
	req.NoError(c.CheckAccess(ctx, room.ID, "cola"))

	report, err := c.Health(ctx)
	req.NoError(err)
	req.Equal("healthy", report["status"])
}

func TestClient_SessionResumesSavedChatter(t *testing.T) {
	req := require.New(t)
	c := newTestClient(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, CreateRoomRequest{Namespace: "general", Title: "lobby"})
	req.NoError(err)

	// Given a first session that joins as a new chatter
	s, err := c.Dial(ctx, "")
	req.NoError(err)
	defer s.Close()
	req.NoError(s.Join(room.ID, ""))
	ack := nextMatching(t, s, func(f Frame) bool { return f.IsAck() && f.Event == "joinRoom" })
	req.True(*ack.Success)
	var p models.Participant
	req.NoError(json.Unmarshal(ack.Data, &p))
	c.ChatterID = p.ID
	req.NoError(c.SaveConfig())

	// When it talks
	req.NoError(s.Say(room.ID, "hello"))
	nextMatching(t, s, func(f Frame) bool { return !f.IsAck() && f.Event == chat.EventChat })

	// Then a fresh client with the same config sees its history and roster
	fresh := NewClient(c.BaseURL)
	req.Equal(p.ID, fresh.ChatterID)

	msgs, err := fresh.History(ctx, room.ID, 1)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("hello", msgs[1].Content)

	roster, err := fresh.Roster(ctx, room.ID)
	req.NoError(err)
	req.Len(roster, 1)

	renamed, err := fresh.Rename(ctx, "fizz")
	req.NoError(err)
	req.Equal("fizz", renamed.Nickname)
}
