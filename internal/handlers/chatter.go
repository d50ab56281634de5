package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RenameRequest represents the nickname change request.
type RenameRequest struct {
	Nickname string `json:"nickname" validate:"required"`
}

// GetChatter returns a participant profile.
func (h *Handler) GetChatter(w http.ResponseWriter, r *http.Request) {
	p, err := h.chat.GetParticipant(r.Context(), chi.URLParam(r, "chatterId"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, p)
}

// RenameChatter changes a participant's nickname.
func (h *Handler) RenameChatter(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.chat.RenameParticipant(r.Context(), chi.URLParam(r, "chatterId"), sanitizeText(req.Nickname))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, p)
}
