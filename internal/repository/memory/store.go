// Package memory holds an in-process implementation of every repository and
// of domain.Transactor. It backs STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"

	"vehicle-orders/internal/domain"
)

type state struct {
	orders    map[string]*domain.Order
	history   []domain.StatusChange
	notes     []domain.OrderNote
	seq       int64
	payments  map[string]*domain.Payment
	refs      map[string]string
	fees      *domain.FeeSettings
	outbox    []*domain.OutboxMessage
	inbox     map[string]*domain.InboxMessage
	activity  []domain.AdminActivity
	vehicles  map[string]*domain.VehicleSnapshot
	addresses map[string]*domain.Destination
}

func newState() *state {
	return &state{
		orders:    make(map[string]*domain.Order),
		payments:  make(map[string]*domain.Payment),
		refs:      make(map[string]string),
		inbox:     make(map[string]*domain.InboxMessage),
		vehicles:  make(map[string]*domain.VehicleSnapshot),
		addresses: make(map[string]*domain.Destination),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	c.history = append([]domain.StatusChange(nil), s.history...)
	c.notes = append([]domain.OrderNote(nil), s.notes...)
	c.seq = s.seq
	for k, v := range s.payments {
		c.payments[k] = clonePayment(v)
	}
	for k, v := range s.refs {
		c.refs[k] = v
	}
	if s.fees != nil {
		f := *s.fees
		c.fees = &f
	}
	for _, m := range s.outbox {
		cp := *m
		c.outbox = append(c.outbox, &cp)
	}
	for k, v := range s.inbox {
		cp := *v
		c.inbox[k] = &cp
	}
	c.activity = append([]domain.AdminActivity(nil), s.activity...)
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	return c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Tags = append([]string(nil), o.Tags...)
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.Metadata = append([]byte(nil), p.Metadata...)
	return &c
}

// Store serializes transactions with txMu and guards data with mu. A failed
// transaction restores the snapshot taken when it began, then replays the
// writes other callers made outside the transaction while it ran.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state

	inTx    bool
	journal []func(d *state) error
}

type txKey struct{ s *Store }

func NewStore() *Store {
	return &Store{data: newState()}
}

func (s *Store) Querier() domain.Querier {
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, q domain.Querier) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.inTx = true
	s.journal = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inTx = false
		s.journal = nil
		s.mu.Unlock()
	}()

	restore := func() {
		s.mu.Lock()
		for _, w := range s.journal {
			_ = w(snapshot)
		}
		s.data = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{s}, true), nil); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.data); err != nil {
		return err
	}
	if s.inTx && ctx.Value(txKey{s}) == nil {
		s.journal = append(s.journal, fn)
	}
	return nil
}

// AddVehicle seeds the catalog.
func (s *Store) AddVehicle(v domain.VehicleSnapshot) {
	_ = s.write(context.Background(), func(d *state) error {
		d.vehicles[v.ID] = &v
		return nil
	})
}

// SetDefaultAddress seeds the address book.
func (s *Store) SetDefaultAddress(userID string, dest domain.Destination) {
	_ = s.write(context.Background(), func(d *state) error {
		d.addresses[userID] = &dest
		return nil
	})
}

// OutboxMessages returns a copy of every outbox row in insertion order.
func (s *Store) OutboxMessages() []domain.OutboxMessage {
	var out []domain.OutboxMessage
	s.read(func(d *state) {
		for _, m := range d.outbox {
			out = append(out, *m)
		}
	})
	return out
}

// Activity returns a copy of the admin activity log.
func (s *Store) Activity() []domain.AdminActivity {
	var out []domain.AdminActivity
	s.read(func(d *state) {
		out = append(out, d.activity...)
	})
	return out
}
