package server

import (
	"context"
	"io"
	"time"

	"reserva-backend/internal/timer"

	"github.com/gin-gonic/gin"
)

// handleStreamOrder pushes the order document on every change and a timer
// snapshot every second. The countdown goroutine lives exactly as long as
// the request.
func (s *Server) handleStreamOrder(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	changes, err := s.orders.Watch(ctx, claimsOf(c).UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	first, ok := <-changes
	if !ok {
		return
	}

	tm := timer.New(first.Order, s.cfg.ExpiryWarning)
	snaps := make(chan timer.Snapshot, 1)
	go tm.Run(ctx, time.Second, s.now, func(snap timer.Snapshot) {
		deliver(ctx, snaps, snap)
	})

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("order", first.Order)
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ch, ok := <-changes:
			if !ok {
				return false
			}
			if ch.Deleted {
				c.SSEvent("deleted", gin.H{"orderId": ch.Order.OrderID})
				return false
			}
			tm.Reset(ch.Order)
			c.SSEvent("order", ch.Order)
		case snap := <-snaps:
			if !snap.Active {
				return true
			}
			c.SSEvent("timer", snap)
			if snap.Warn {
				c.SSEvent("warning", gin.H{"remainingMs": snap.RemainMS})
			}
			if snap.Expired {
				c.SSEvent("expired", gin.H{"orderId": first.Order.OrderID})
			}
		}
		return true
	})
}

// deliver hands a snapshot to the stream loop. It blocks rather than drop,
// since the warning latch in the timer has already been spent by the time a
// Warn snapshot exists. It reports false once ctx is done.
func deliver(ctx context.Context, snaps chan<- timer.Snapshot, snap timer.Snapshot) bool {
	select {
	case snaps <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
