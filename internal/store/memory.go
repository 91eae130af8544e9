package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// RunInTx works on a deep copy of the state: the transaction's writes land
// on the copy, and a successful return swaps the copy in. An error (or
// panic) discards the copy, so rollback is total, matching the
// all-or-nothing contract of the PostgreSQL implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	fights    map[string]*model.Fight
	users     map[string]*model.User
	positions map[string]*model.Position
	orders    map[string]*model.Order
	ledger    []model.CreditTransaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fights:    make(map[string]*model.Fight),
		users:     make(map[string]*model.User),
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
	}
}

func (s *MemoryStore) CreateFight(_ context.Context, f *model.Fight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fights[f.ID]; ok {
		return fmt.Errorf("fight %s already exists", f.ID)
	}
	s.fights[f.ID] = copyFight(f)
	return nil
}

func (s *MemoryStore) GetFight(_ context.Context, id string) (*model.Fight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fights[id]
	if !ok {
		return nil, fmt.Errorf("fight %s: %w", id, ErrNotFound)
	}
	return copyFight(f), nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) TransactionsByUser(_ context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.CreditTransaction
	for _, t := range s.ledger {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[p.ID]; ok {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	s.positions[p.ID] = copyPosition(p)
	return nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *MemoryStore) PositionsByFight(_ context.Context, fightID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return positionsByFight(s.positions, fightID), nil
}

func (s *MemoryStore) OrdersByFight(_ context.Context, fightID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.FightID == fightID {
			result = append(result, *copyOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// RunInTx runs fn against a snapshot; commit is the swap at the end.
func (s *MemoryStore) RunInTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &memoryTx{
		fights:    make(map[string]*model.Fight, len(s.fights)),
		users:     make(map[string]*model.User, len(s.users)),
		positions: make(map[string]*model.Position, len(s.positions)),
		orders:    make(map[string]*model.Order, len(s.orders)),
		ledger:    append([]model.CreditTransaction(nil), s.ledger...),
	}
	for id, f := range s.fights {
		snap.fights[id] = copyFight(f)
	}
	for id, u := range s.users {
		copy := *u
		snap.users[id] = &copy
	}
	for id, p := range s.positions {
		snap.positions[id] = copyPosition(p)
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}

	if err := fn(snap); err != nil {
		return err
	}

	s.fights = snap.fights
	s.users = snap.users
	s.positions = snap.positions
	s.orders = snap.orders
	s.ledger = snap.ledger
	return nil
}

// memoryTx holds the transaction's working copy. Callers run under the
// store mutex, so no further locking is needed here.
type memoryTx struct {
	fights    map[string]*model.Fight
	users     map[string]*model.User
	positions map[string]*model.Position
	orders    map[string]*model.Order
	ledger    []model.CreditTransaction
}

func (t *memoryTx) TransitionFight(_ context.Context, fightID string, from, to model.TradingState) error {
	f, ok := t.fights[fightID]
	if !ok {
		return fmt.Errorf("fight %s: %w", fightID, ErrNotFound)
	}
	if f.TradingState != from {
		return fmt.Errorf("fight %s is %s: %w", fightID, f.TradingState, ErrFightNotOpen)
	}
	next, err := f.TradingState.Transition(to)
	if err != nil {
		return err
	}
	f.TradingState = next
	if next == model.StateClosed {
		now := time.Now().UTC()
		f.SettledAt = &now
	}
	return nil
}

func (t *memoryTx) CancelOpenOrders(_ context.Context, fightID string, at time.Time) (int64, error) {
	var n int64
	for _, o := range t.orders {
		if o.FightID != fightID {
			continue
		}
		if o.Status != model.OrderOpen && o.Status != model.OrderPartiallyFilled {
			continue
		}
		o.Status = model.OrderCancelled
		cancelled := at
		o.CancelledAt = &cancelled
		n++
	}
	return n, nil
}

func (t *memoryTx) PositionsByFight(_ context.Context, fightID string) ([]model.Position, error) {
	return positionsByFight(t.positions, fightID), nil
}

func (t *memoryTx) MarkPositionSettled(_ context.Context, positionID string, pnl decimal.Decimal, at time.Time) error {
	p, ok := t.positions[positionID]
	if !ok {
		return fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	settledAt := at
	p.Settled = true
	p.SettlementPnl = &pnl
	p.SettledAt = &settledAt
	return nil
}

func (t *memoryTx) IncrementCredits(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	u, ok := t.users[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.Credits = u.Credits.Add(amount)
	return u.Credits, nil
}

func (t *memoryTx) InsertCreditTransaction(_ context.Context, ct *model.CreditTransaction) error {
	t.ledger = append(t.ledger, *ct)
	return nil
}

// --- Copy helpers ---

func copyFight(f *model.Fight) *model.Fight {
	copy := *f
	if f.SettledAt != nil {
		at := *f.SettledAt
		copy.SettledAt = &at
	}
	return &copy
}

func copyPosition(p *model.Position) *model.Position {
	copy := *p
	if p.SettlementPnl != nil {
		pnl := *p.SettlementPnl
		copy.SettlementPnl = &pnl
	}
	if p.SettledAt != nil {
		at := *p.SettledAt
		copy.SettledAt = &at
	}
	return &copy
}

func copyOrder(o *model.Order) *model.Order {
	copy := *o
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		copy.CancelledAt = &at
	}
	return &copy
}

func positionsByFight(positions map[string]*model.Position, fightID string) []model.Position {
	var result []model.Position
	for _, p := range positions {
		if p.FightID == fightID {
			result = append(result, *copyPosition(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
