package repo

import (
	"context"
	"sort"
	"sync"

	"reserva-backend/internal/domain"
)

// MemoryOrderRepo keeps copies of the order documents; callers never share
// memory with the store.
type MemoryOrderRepo struct {
	mu  sync.RWMutex
	m   map[string]domain.Order
	seq int64
	hub *hub
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{m: make(map[string]domain.Order), hub: newHub()}
}

// Create assigns the next numeroOrden and stores o.
func (r *MemoryOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	r.seq++
	o.Number = r.seq
	r.m[o.OrderID] = o.Clone()
	r.mu.Unlock()
	r.hub.publish(domain.OrderChange{Order: *o})
	return nil
}

func (r *MemoryOrderRepo) Put(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	r.m[o.OrderID] = o.Clone()
	r.mu.Unlock()
	r.hub.publish(domain.OrderChange{Order: *o})
	return nil
}

func (r *MemoryOrderRepo) Get(_ context.Context, id string) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, false, nil
	}
	cp := o.Clone()
	return &cp, true, nil
}

func (r *MemoryOrderRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
	r.hub.publish(domain.OrderChange{Order: domain.Order{OrderID: id}, Deleted: true})
	return nil
}

// ListByStatus returns matching orders oldest first.
func (r *MemoryOrderRepo) ListByStatus(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range r.m {
		if o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *MemoryOrderRepo) Subscribe(ctx context.Context, id string) (<-chan domain.OrderChange, error) {
	return r.hub.subscribe(ctx, id), nil
}
