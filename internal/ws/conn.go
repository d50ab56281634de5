package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/crypto"
	"github.com/angar2/cola-chat-back/internal/models"
)

// Sessions is the part of the chat service the hub drives.
type Sessions interface {
	Join(ctx context.Context, roomID, participantID, connID string) (*models.Participant, error)
	Leave(ctx context.Context, roomID, connID string)
	Disconnect(ctx context.Context, connID string)
	SendMessage(ctx context.Context, roomID, connID, content string) (*models.Message, error)
	SendAlert(ctx context.Context, roomID, connID, content string) (*models.Message, error)
}

// Conn is one websocket connection.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// rooms is guarded by the hub's mutex.
	rooms map[string]string
}

// enqueue queues a frame without blocking. It reports false when the
// queue is full.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown asks the write pump to send a close frame and drop the socket.
func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Handler upgrades requests to websocket connections served by sessions.
func (h *Hub) Handler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
			return
		}

		c := &Conn{
			id:    crypto.NewID(),
			ws:    wsConn,
			send:  make(chan []byte, h.opts.SendBuffer),
			done:  make(chan struct{}),
			rooms: make(map[string]string),
		}
		h.register(c)

		go h.writePump(c)
		h.readPump(c, sessions)

		ctx, cancel := context.WithTimeout(context.Background(), h.opts.IOTimeout)
		sessions.Disconnect(ctx, c.id)
		cancel()
		h.unregister(c)
		c.shutdown()
	}
}

func (h *Hub) readPump(c *Conn, sessions Sessions) {
	c.ws.SetReadLimit(h.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(c, Ack{Event: "error", Message: "malformed frame", Code: chat.CodeInvalidData})
			continue
		}
		h.reply(c, h.dispatch(c, sessions, frame))
	}
}

func (h *Hub) dispatch(c *Conn, sessions Sessions, frame Frame) Ack {
	var req RoomRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return failure(frame.Event, chat.ErrInvalidData)
		}
	}
	if req.RoomID == "" {
		return failure(frame.Event, chat.ErrInvalidData)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.IOTimeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch frame.Event {
	case EventJoinRoom:
		data, err = sessions.Join(ctx, req.RoomID, req.ChatterID, c.id)
	case EventLeaveRoom:
		sessions.Leave(ctx, req.RoomID, c.id)
	case EventSendMessage:
		data, err = sessions.SendMessage(ctx, req.RoomID, c.id, req.Content)
	case EventSendAlert:
		data, err = sessions.SendAlert(ctx, req.RoomID, c.id, req.Content)
	default:
		return failure(frame.Event, chat.ErrInvalidData)
	}
	if err != nil {
		if chat.KindOf(err) == chat.KindInternal {
			h.logger.Error().Err(err).Str("conn_id", c.id).Str("event", frame.Event).Msg("websocket event failed")
		}
		return failure(frame.Event, err)
	}
	return Ack{Event: frame.Event, Success: true, Message: ackSuccessMessage, Data: data}
}

func failure(event string, err error) Ack {
	ack := Ack{Event: event, Code: chat.CodeOf(err), Message: "internal server error"}
	var domainErr *chat.Error
	if errors.As(err, &domainErr) {
		ack.Message = domainErr.Message
	}
	return ack
}

func (h *Hub) reply(c *Conn, ack Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode ack")
		return
	}
	if !c.enqueue(data) {
		h.logger.Warn().Str("conn_id", c.id).Str("event", ack.Event).Msg("send queue full, ack dropped")
	}
}

func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
