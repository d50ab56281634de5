package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Backend   string           `json:"backend"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

func runCheck(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health handles the health check endpoint. It answers outside the
// response envelope so load balancers can read it directly.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{
		"database": runCheck(ctx, h.stores.Data.Ping),
		"redis":    {Status: "skip", Message: "not configured"},
	}
	if h.stores.Redis != nil {
		checks["redis"] = runCheck(ctx, h.stores.Redis.Ping)
	}

	status, statusCode := "healthy", http.StatusOK
	for _, c := range checks {
		if c.Status == "fail" {
			status, statusCode = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Backend:   h.stores.Backend(),
		Instance:  os.Getenv("HOSTNAME"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	WebSocket string `json:"websocket"`
}

// Root handles the API index endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.OK(w, http.StatusOK, RootResponse{
		Name:      "cola-chat",
		Version:   version,
		WebSocket: "/ws",
	})
}
