// Package colachat provides a client for the cola-chat HTTP and websocket API.
package colachat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/angar2/cola-chat-back/internal/models"
)

// Client is a cola-chat API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	ChatterID  string
	HTTPClient *http.Client
}

// Config is the identity the client keeps between runs.
type Config struct {
	ChatterID string `json:"chatterId"`
}

// Error is a failed API response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cola-chat error %d %s: %s", e.Status, e.Code, e.Message)
}

// NewClient creates a client and loads a saved chatter id if present.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("COLACHAT_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".colachat")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved chatter id.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "chatter.json"))
	if err != nil {
		return err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	c.ChatterID = cfg.ChatterID
	return nil
}

// SaveConfig saves the chatter id so later sessions resume the identity.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(Config{ChatterID: c.ChatterID}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "chatter.json"), data, 0600)
}

// envelope is the body of every chat API response.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// do performs a request and decodes the envelope data into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return &Error{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// CreateRoomRequest is the request body for room creation.
type CreateRoomRequest struct {
	Namespace  string `json:"namespace"`
	Title      string `json:"title"`
	Capacity   *int   `json:"capacity,omitempty"`
	IsPassword bool   `json:"isPassword"`
	Password   string `json:"password,omitempty"`
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/chat/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms lists every room.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &rooms)
	return rooms, err
}

// GetRoom fetches a room.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodGet, "/chat/rooms/"+roomID, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CheckAccess asks whether the room can be entered with password now.
func (c *Client) CheckAccess(ctx context.Context, roomID, password string) error {
	body := map[string]string{"password": password, "chatterId": c.ChatterID}
	return c.do(ctx, http.MethodPost, "/chat/rooms/"+roomID+"/access-check", body, nil)
}

// Roster returns the online chatters of a room.
func (c *Client) Roster(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := c.do(ctx, http.MethodGet, "/chat/rooms/"+roomID+"/chatters", nil, &participants)
	return participants, err
}

// History returns a page of room history for the client's chatter.
func (c *Client) History(ctx context.Context, roomID string, page int) ([]models.Message, error) {
	path := "/chat/messages/" + roomID + "/" + strconv.Itoa(page)
	if c.ChatterID != "" {
		path += "/" + c.ChatterID
	}
	var msgs []models.Message
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

// GetChatter fetches a chatter profile.
func (c *Client) GetChatter(ctx context.Context, chatterID string) (*models.Participant, error) {
	var p models.Participant
	if err := c.do(ctx, http.MethodGet, "/chat/chatters/"+chatterID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Rename changes the nickname of the client's chatter.
func (c *Client) Rename(ctx context.Context, nickname string) (*models.Participant, error) {
	var p models.Participant
	body := map[string]string{"nickname": nickname}
	if err := c.do(ctx, http.MethodPatch, "/chat/chatters/"+c.ChatterID+"/nickname", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Health returns the raw health report.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return report, nil
}
