package colachat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Frame is one websocket message from the server. Acks carry Success;
// room broadcasts leave it nil.
type Frame struct {
	Event   string          `json:"event"`
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// IsAck reports whether f answers a request.
func (f Frame) IsAck() bool {
	return f.Success != nil
}

// Session is an open websocket connection.
type Session struct {
	conn *websocket.Conn
}

// Dial opens a websocket session. origin may be empty.
func (c *Client) Dial(ctx context.Context, origin string) (*Session, error) {
	url := "ws" + strings.TrimPrefix(c.BaseURL, "http") + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Session{conn: conn}, nil
}

type request struct {
	RoomID    string `json:"roomId"`
	ChatterID string `json:"chatterId,omitempty"`
	Content   string `json:"content,omitempty"`
}

func (s *Session) send(event string, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(data)})
}

// Join asks to join roomID as chatterID, or as a new chatter when
// chatterID is empty. The ack carries the chatter.
func (s *Session) Join(roomID, chatterID string) error {
	return s.send("joinRoom", request{RoomID: roomID, ChatterID: chatterID})
}

// Leave leaves roomID.
func (s *Session) Leave(roomID string) error {
	return s.send("leaveRoom", request{RoomID: roomID})
}

// Say posts a chat message.
func (s *Session) Say(roomID, content string) error {
	return s.send("sendMessage", request{RoomID: roomID, Content: content})
}

// Alert posts an alert message.
func (s *Session) Alert(roomID, content string) error {
	return s.send("sendAlert", request{RoomID: roomID, Content: content})
}

// Next blocks until the next frame arrives.
func (s *Session) Next() (Frame, error) {
	var f Frame
	err := s.conn.ReadJSON(&f)
	return f, err
}

// Close closes the session.
func (s *Session) Close() error {
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
