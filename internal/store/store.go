// Package store defines the persistence interface for the settlement
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrFightNotOpen is returned by TransitionFight when the conditional
	// update matched no row: the fight is already past the expected state.
	// This is the exclusivity point that makes concurrent or repeated
	// settlement attempts abort instead of double-paying.
	ErrFightNotOpen = errors.New("store: fight is not in the expected trading state")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Fight operations ---

	// CreateFight persists a new fight in the OPEN state.
	CreateFight(ctx context.Context, fight *model.Fight) error

	// GetFight retrieves a fight by its ID.
	GetFight(ctx context.Context, id string) (*model.Fight, error)

	// --- User / ledger reads ---

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, user *model.User) error

	// TransactionsByUser returns a user's credit transactions, newest first.
	TransactionsByUser(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)

	// --- Trading-side writes (owned by the order matching subsystem) ---

	// CreatePosition persists a new position.
	CreatePosition(ctx context.Context, p *model.Position) error

	// CreateOrder persists a new resting order.
	CreateOrder(ctx context.Context, o *model.Order) error

	// --- Fight-scoped reads ---

	// PositionsByFight returns all positions for a fight.
	PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error)

	// OrdersByFight returns all orders for a fight.
	OrdersByFight(ctx context.Context, fightID string) ([]model.Order, error)

	// --- Transactions ---

	// RunInTx executes fn inside one all-or-nothing transaction. Any error
	// from fn rolls back every write made through the Tx; nil commits.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside a settlement transaction.
// Every method's effect is atomic with the rest of the transaction.
type Tx interface {
	// TransitionFight conditionally moves a fight from one trading state to
	// the next. Returns ErrFightNotOpen when the fight is not in the `from`
	// state, without writing anything.
	TransitionFight(ctx context.Context, fightID string, from, to model.TradingState) error

	// CancelOpenOrders bulk-cancels the fight's OPEN and PARTIALLY_FILLED
	// orders, stamping cancelledAt, and returns the affected count.
	CancelOpenOrders(ctx context.Context, fightID string, at time.Time) (int64, error)

	// PositionsByFight returns all positions for a fight.
	PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error)

	// MarkPositionSettled writes the position's one-time settlement fields.
	MarkPositionSettled(ctx context.Context, positionID string, pnl decimal.Decimal, at time.Time) error

	// IncrementCredits adds amount to a user's balance and returns the
	// balance after the increment.
	IncrementCredits(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)

	// InsertCreditTransaction appends an immutable ledger entry.
	InsertCreditTransaction(ctx context.Context, tx *model.CreditTransaction) error
}
