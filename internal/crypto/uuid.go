package crypto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random 128-bit identifier in canonical UUID form.
func NewID() string {
	return uuid.NewString()
}

// NewSortableID returns a lexicographically time-ordered identifier for t.
func NewSortableID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// ValidID reports whether s parses as a UUID.
func ValidID(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}
