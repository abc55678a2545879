package server

import (
	"context"
	"testing"
	"time"

	"reserva-backend/internal/timer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_WaitsForSlowStream(t *testing.T) {
	snaps := make(chan timer.Snapshot, 1)
	snaps <- timer.Snapshot{Active: true, RemainMS: 16000}

	done := make(chan bool, 1)
	go func() {
		done <- deliver(context.Background(), snaps, timer.Snapshot{Active: true, RemainMS: 15000, Warn: true})
	}()

	select {
	case <-done:
		t.Fatal("warning snapshot was not held back while the stream was busy")
	case <-time.After(50 * time.Millisecond):
	}

	first := <-snaps
	assert.False(t, first.Warn)
	require.True(t, <-done)
	second := <-snaps
	assert.True(t, second.Warn, "warning snapshot must reach the stream")
}

func TestDeliver_StopsWithContext(t *testing.T) {
	snaps := make(chan timer.Snapshot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, deliver(ctx, snaps, timer.Snapshot{Warn: true}))
}
