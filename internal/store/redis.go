package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Settlement transactions
// run entirely against the primary; the keys they touched are invalidated
// only after the transaction commits, so the cache never sees uncommitted
// state.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateFight(ctx context.Context, f *model.Fight) error {
	if err := s.primary.CreateFight(ctx, f); err != nil {
		return err
	}
	s.cacheFight(ctx, f)
	return nil
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(u.ID))
	return nil
}

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) error {
	return s.primary.CreatePosition(ctx, p)
}

func (s *CachedStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.CreateOrder(ctx, o)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetFight(ctx context.Context, id string) (*model.Fight, error) {
	data, err := s.rdb.Get(ctx, fightKey(id)).Bytes()
	if err == nil {
		var f model.Fight
		if json.Unmarshal(data, &f) == nil {
			return &f, nil
		}
	}

	// Cache miss: read from primary.
	f, err := s.primary.GetFight(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheFight(ctx, f)
	return f, nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(id), data, s.ttl)
	}
	return u, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) TransactionsByUser(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	return s.primary.TransactionsByUser(ctx, userID, limit)
}

func (s *CachedStore) PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error) {
	return s.primary.PositionsByFight(ctx, fightID)
}

func (s *CachedStore) OrdersByFight(ctx context.Context, fightID string) ([]model.Order, error) {
	return s.primary.OrdersByFight(ctx, fightID)
}

// --- Transactions ---

// RunInTx delegates to the primary store and records which fight and user
// keys the transaction touched. On commit those keys are dropped so the
// next read repopulates from the primary.
func (s *CachedStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	rec := &recordingTx{}
	err := s.primary.RunInTx(ctx, func(tx Tx) error {
		rec.inner = tx
		return fn(rec)
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rec.fightIDs)+len(rec.userIDs))
	for _, id := range rec.fightIDs {
		keys = append(keys, fightKey(id))
	}
	for _, id := range rec.userIDs {
		keys = append(keys, userKey(id))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// recordingTx passes every call through and remembers touched keys.
type recordingTx struct {
	inner    Tx
	fightIDs []string
	userIDs  []string
}

func (t *recordingTx) TransitionFight(ctx context.Context, fightID string, from, to model.TradingState) error {
	t.fightIDs = append(t.fightIDs, fightID)
	return t.inner.TransitionFight(ctx, fightID, from, to)
}

func (t *recordingTx) CancelOpenOrders(ctx context.Context, fightID string, at time.Time) (int64, error) {
	return t.inner.CancelOpenOrders(ctx, fightID, at)
}

func (t *recordingTx) PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error) {
	return t.inner.PositionsByFight(ctx, fightID)
}

func (t *recordingTx) MarkPositionSettled(ctx context.Context, positionID string, pnl decimal.Decimal, at time.Time) error {
	return t.inner.MarkPositionSettled(ctx, positionID, pnl, at)
}

func (t *recordingTx) IncrementCredits(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	t.userIDs = append(t.userIDs, userID)
	return t.inner.IncrementCredits(ctx, userID, amount)
}

func (t *recordingTx) InsertCreditTransaction(ctx context.Context, ct *model.CreditTransaction) error {
	return t.inner.InsertCreditTransaction(ctx, ct)
}

// --- Cache helpers ---

func (s *CachedStore) cacheFight(ctx context.Context, f *model.Fight) {
	if data, err := json.Marshal(f); err == nil {
		s.rdb.Set(ctx, fightKey(f.ID), data, s.ttl)
	}
}

func fightKey(id string) string { return fmt.Sprintf("fight:%s", id) }
func userKey(id string) string  { return fmt.Sprintf("user:%s", id) }
