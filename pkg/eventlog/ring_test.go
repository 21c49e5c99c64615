package eventlog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBounded(t *testing.T) {
	r := NewRing()
	for i := 0; i < ringSize*2; i++ {
		r.Push(LevelInfo, "tick")
	}
	require.Len(t, r.Entries(), ringSize)
}

func TestRingPreservesOrder(t *testing.T) {
	r := NewRing()
	r.Push(LevelInfo, "first")
	r.Push(LevelWarning, "second")
	entries := r.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].Message)
	require.Equal(t, "second", entries[1].Message)
}

func TestHandlerTapsRecords(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	ring := NewRing()
	h := NewHandler(base, ring)

	logger := slog.New(h)
	logger.Warn("drift detected", "component", "reconciler")

	entries := ring.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, LevelWarning, entries[0].Level)
	require.Contains(t, buf.String(), "drift detected")
}

func TestRingSubscribeDoesNotBlock(t *testing.T) {
	r := NewRing()
	ch := make(chan Entry) // unbuffered, never read from
	r.Subscribe(ch)
	r.Push(LevelInfo, "should not hang")
	require.Len(t, r.Entries(), 1)
}
