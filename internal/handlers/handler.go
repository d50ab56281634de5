// Package handlers serves the HTTP request surface of the chat service.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/store"
)

const (
	msgOK       = "request processed successfully"
	msgInternal = "internal server error"
)

// ConnectionCounter reports open realtime connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat     *chat.Service
	stores   *store.Stores
	conns    ConnectionCounter
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler creates a new Handler. conns may be nil.
func NewHandler(svc *chat.Service, stores *store.Stores, conns ConnectionCounter, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:     svc,
		stores:   stores,
		conns:    conns,
		validate: validator.New(),
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// OK sends a successful envelope.
func (h *Handler) OK(w http.ResponseWriter, status int, data any) {
	h.JSON(w, status, Envelope{Success: true, Message: msgOK, Data: data})
}

// Fail sends a failed envelope.
func (h *Handler) Fail(w http.ResponseWriter, status int, code, message string) {
	h.JSON(w, status, Envelope{Message: message, Code: code})
}

// Error maps err onto a status code and failed envelope. Errors outside
// the chat taxonomy are logged and reported as INTERNAL.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *chat.Error
	if !errors.As(err, &domainErr) || domainErr.Kind == chat.KindInternal {
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		h.Fail(w, http.StatusInternalServerError, chat.CodeInternal, msgInternal)
		return
	}
	h.Fail(w, statusFor(domainErr.Kind), domainErr.Code, domainErr.Message)
}

func statusFor(kind chat.Kind) int {
	switch kind {
	case chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindInvalidData:
		return http.StatusBadRequest
	case chat.KindCapacityExceeded:
		return http.StatusConflict
	case chat.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and validates its tags. It writes
// the failure response itself and reports whether the handler may go on.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Fail(w, http.StatusBadRequest, chat.CodeInvalidData, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.Fail(w, http.StatusBadRequest, chat.CodeInvalidData, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// sanitizeText trims s and strips control characters.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
