package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndComparePassword(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("letmein", 4)
	req.NoError(err)
	req.NotEqual("letmein", hash)

	ok, err := ComparePassword(hash, "letmein")
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword(hash, "wrong")
	req.NoError(err)
	req.False(ok)
}

func TestComparePassword_EmptyHash(t *testing.T) {
	ok, err := ComparePassword("", "anything")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewSortableID_OrderedByTime(t *testing.T) {
	at := time.Now()
	first := NewSortableID(at)
	second := NewSortableID(at.Add(time.Millisecond))
	require.Less(t, first, second)
}

func TestNewID(t *testing.T) {
	id := NewID()
	require.True(t, ValidID(id))
	require.NotEqual(t, id, NewID())
	require.False(t, ValidID("not-a-uuid"))
}
