package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angar2/cola-chat-back/internal/chat"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Namespace  string `json:"namespace" validate:"required,max=50"`
	Title      string `json:"title" validate:"required,max=100"`
	Capacity   *int   `json:"capacity" validate:"omitempty,min=1"`
	IsPassword bool   `json:"isPassword"`
	Password   string `json:"password,omitempty" validate:"max=72"`
}

// AccessCheckRequest represents the room entry check request.
type AccessCheckRequest struct {
	Password  string `json:"password,omitempty"`
	ChatterID string `json:"chatterId,omitempty"`
}

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, err := h.chat.CreateRoom(r.Context(), chat.CreateRoomInput{
		Namespace:  sanitizeText(req.Namespace),
		Title:      sanitizeText(req.Title),
		Capacity:   req.Capacity,
		IsPassword: req.IsPassword,
		Password:   req.Password,
	})
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusCreated, room)
}

// ListRooms returns every stored room.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.ListRooms(r.Context())
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, rooms)
}

// GetRoom returns a room that has not expired.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.chat.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, room)
}

// AccessCheck validates the password and capacity of a room before a
// client opens its socket.
func (h *Handler) AccessCheck(w http.ResponseWriter, r *http.Request) {
	var req AccessCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.chat.ValidateRoomEntry(r.Context(), chi.URLParam(r, "roomId"), req.Password, req.ChatterID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, true)
}

// RoomChatters returns the online roster of a room.
func (h *Handler) RoomChatters(w http.ResponseWriter, r *http.Request) {
	participants, err := h.chat.RoomParticipants(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, participants)
}
