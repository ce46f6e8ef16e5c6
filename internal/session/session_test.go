package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put(1, "k", "v")

	v, ok := s.Get(1, "k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok = s.Get(2, "k")
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put(1, "k", "v")
	s.Delete(1, "k")

	_, ok := s.Get(1, "k")
	require.False(t, ok)
}

func TestExpiry(t *testing.T) {
	s := NewStore(10 * time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Put(1, "k", "v")

	s.now = func() time.Time { return base.Add(9 * time.Minute) }
	_, ok := s.Get(1, "k")
	require.True(t, ok)

	s.now = func() time.Time { return base.Add(10*time.Minute + time.Second) }
	_, ok = s.Get(1, "k")
	require.False(t, ok)
}

func TestPutRefreshesTTL(t *testing.T) {
	s := NewStore(10 * time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Put(1, "k", "v1")

	s.now = func() time.Time { return base.Add(8 * time.Minute) }
	s.Put(1, "k", "v2")

	s.now = func() time.Time { return base.Add(15 * time.Minute) }
	v, ok := s.Get(1, "k")
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestZeroTTLDefaults(t *testing.T) {
	s := NewStore(0)
	require.Equal(t, DefaultTTL, s.ttl)
}
