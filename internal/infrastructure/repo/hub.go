package repo

import (
	"context"
	"sync"

	"reserva-backend/internal/domain"
)

// hub fans order changes out to per-order subscribers. Each subscriber holds
// at most one pending change; a slow reader only ever sees the latest one.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.OrderChange]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan domain.OrderChange]struct{})}
}

// subscribe registers a channel for orderID that is closed once ctx is done.
func (h *hub) subscribe(ctx context.Context, orderID string) <-chan domain.OrderChange {
	ch := make(chan domain.OrderChange, 1)
	h.mu.Lock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[chan domain.OrderChange]struct{})
	}
	h.subs[orderID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[orderID], ch)
		if len(h.subs[orderID]) == 0 {
			delete(h.subs, orderID)
		}
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *hub) watched(orderID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[orderID]) > 0
}

func (h *hub) publish(c domain.OrderChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[c.Order.OrderID] {
		msg := domain.OrderChange{Order: c.Order.Clone(), Deleted: c.Deleted}
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- msg
		}
	}
}
