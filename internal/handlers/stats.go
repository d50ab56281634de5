package handlers

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/samber/lo"
)

const busiestRoomLimit = 5

// RoomStats represents the online count of a single room.
type RoomStats struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Online int    `json:"online"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalRooms     int64       `json:"totalRooms"`
	OccupiedRooms  int         `json:"occupiedRooms"`
	OnlineChatters int         `json:"onlineChatters"`
	Connections    int         `json:"connections"`
	BusiestRooms   []RoomStats `json:"busiestRooms"`
}

// Stats returns service statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalRooms, err := h.stores.Data.CountRooms(ctx)
	if err != nil {
		h.Error(w, r, err)
		return
	}

	counts := h.chat.OnlineCounts()
	entries := lo.Entries(counts)
	slices.SortFunc(entries, func(a, b lo.Entry[string, int]) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	busiest := make([]RoomStats, 0, busiestRoomLimit)
	for _, e := range entries {
		if len(busiest) == busiestRoomLimit {
			break
		}
		// Rooms that expired since their last join drop out.
		room, err := h.chat.GetRoom(ctx, e.Key)
		if err != nil {
			continue
		}
		busiest = append(busiest, RoomStats{ID: room.ID, Title: room.Title, Online: e.Value})
	}

	resp := StatsResponse{
		TotalRooms:     totalRooms,
		OccupiedRooms:  len(counts),
		OnlineChatters: lo.Sum(lo.Values(counts)),
		BusiestRooms:   busiest,
	}
	if h.conns != nil {
		resp.Connections = h.conns.ConnectionCount()
	}
	h.OK(w, http.StatusOK, resp)
}
