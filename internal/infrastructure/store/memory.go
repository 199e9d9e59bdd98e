package store

import (
	"context"
	"sort"
	"sync"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// Memory is an in-process Repository used in tests and local development.
// It applies the same optimistic-concurrency rules as the durable backends.
type Memory struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	// SaveCalls records every successful Save for assertions in tests.
	SaveCalls []string
	// FailSave, when set, makes the next Save return the error once.
	FailSave error
}

func NewMemory() *Memory {
	return &Memory{orders: make(map[string]*order.Order)}
}

func (m *Memory) Get(ctx context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, o *order.Order, expectedVersion int) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		err := m.FailSave
		m.FailSave = nil
		return nil, err
	}

	current, exists := m.orders[o.ID]
	switch {
	case expectedVersion == 0 && exists:
		return nil, ErrVersionConflict
	case expectedVersion > 0 && !exists:
		return nil, ErrNotFound
	case expectedVersion > 0 && current.Version != expectedVersion:
		return nil, ErrVersionConflict
	}

	saved := o.Clone()
	saved.Version = expectedVersion + 1
	m.orders[o.ID] = saved
	m.SaveCalls = append(m.SaveCalls, o.ID)
	return saved.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *Memory) Query(ctx context.Context, f Filter, s Sort, p Page) ([]*order.Order, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*order.Order
	for _, o := range m.orders {
		if f.Matches(o) {
			matched = append(matched, o.Clone())
		}
	}

	sortOrders(matched, s)

	total := len(matched)
	p = p.Normalize()
	start := (p.Number - 1) * p.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func sortOrders(items []*order.Order, s Sort) {
	less := func(a, b *order.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch s.Field {
	case "deadline":
		less = func(a, b *order.Order) bool { return a.Deadline.Before(b.Deadline) }
	case "current_quantity":
		less = func(a, b *order.Order) bool { return a.CurrentQuantity < b.CurrentQuantity }
	case "price_per_unit":
		less = func(a, b *order.Order) bool { return a.PricePerUnit < b.PricePerUnit }
	}
	sort.SliceStable(items, func(i, j int) bool {
		if s.Descending {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}
