package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/angar2/cola-chat-back/internal/chat"
)

// Messages returns one page of room history for a participant. Pages
// count from 1, newest first, and each page is in chronological order.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		h.Error(w, r, chat.ErrInvalidData)
		return
	}

	msgs, err := h.chat.GetMessagePage(r.Context(), chi.URLParam(r, "roomId"), page, chi.URLParam(r, "chatterId"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.OK(w, http.StatusOK, msgs)
}
