package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateFight(ctx context.Context, f *model.Fight) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fights (id, league, tier, trading_state, created_at, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.League, f.Tier, f.TradingState, f.CreatedAt, f.SettledAt,
	)
	return err
}

func (s *PostgresStore) GetFight(ctx context.Context, id string) (*model.Fight, error) {
	var f model.Fight
	err := s.pool.QueryRow(ctx,
		`SELECT id, league, tier, trading_state, created_at, settled_at
		 FROM fights WHERE id = $1`, id).
		Scan(&f.ID, &f.League, &f.Tier, &f.TradingState, &f.CreatedAt, &f.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fight %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fight %s: %w", id, err)
	}
	return &f, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var credits string
	err := s.pool.QueryRow(ctx,
		`SELECT id, credits::TEXT FROM users WHERE id = $1`, id).
		Scan(&u.ID, &credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	u.Credits, _ = decimal.NewFromString(credits)
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, credits) VALUES ($1, $2::NUMERIC)`,
		u.ID, u.Credits.String(),
	)
	return err
}

func (s *PostgresStore) TransactionsByUser(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, amount::TEXT, fee::TEXT, balance_after::TEXT,
		        description, related_id, related_type, created_at
		 FROM credit_transactions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var amount, fee, balance string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &amount, &fee, &balance,
			&t.Description, &t.RelatedID, &t.RelatedType, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount, _ = decimal.NewFromString(amount)
		t.Fee, _ = decimal.NewFromString(fee)
		t.BalanceAfter, _ = decimal.NewFromString(balance)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	var pnl *string
	if p.SettlementPnl != nil {
		v := p.SettlementPnl.String()
		pnl = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, user_id, fight_id, league, side, quantity,
		                        avg_cost_basis, realized_pnl, settlement_pnl, settled, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		p.ID, p.UserID, p.FightID, p.League, p.Side, p.Quantity,
		p.AvgCostBasis.String(), p.RealizedPnl.String(), pnl, p.Settled, p.SettledAt,
	)
	return err
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, fight_id, side, price, quantity, status, created_at, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.FightID, o.Side, o.Price.String(), o.Quantity,
		o.Status, o.CreatedAt, o.CancelledAt,
	)
	return err
}

func (s *PostgresStore) PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, positionsByFightSQL, fightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) OrdersByFight(ctx context.Context, fightID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, fight_id, side, price::TEXT, quantity, status, created_at, cancelled_at
		 FROM orders WHERE fight_id = $1 ORDER BY created_at`, fightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var price string
		if err := rows.Scan(&o.ID, &o.UserID, &o.FightID, &o.Side, &price,
			&o.Quantity, &o.Status, &o.CreatedAt, &o.CancelledAt); err != nil {
			return nil, err
		}
		o.Price, _ = decimal.NewFromString(price)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RunInTx wraps fn in a database transaction with full rollback on error.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer dbTx.Rollback(ctx) // no-op after commit

	if err := fn(&postgresTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	return nil
}

// postgresTx implements Tx on top of a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) TransitionFight(ctx context.Context, fightID string, from, to model.TradingState) error {
	if _, err := from.Transition(to); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE fights
		 SET trading_state = $3,
		     settled_at = CASE WHEN $3 = 'CLOSED' THEN now() ELSE settled_at END
		 WHERE id = $1 AND trading_state = $2`,
		fightID, from, to,
	)
	if err != nil {
		return fmt.Errorf("transition fight %s to %s: %w", fightID, to, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the fight is missing or it already moved past `from`.
		var state model.TradingState
		err := t.tx.QueryRow(ctx,
			`SELECT trading_state FROM fights WHERE id = $1`, fightID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("fight %s: %w", fightID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("transition fight %s: %w", fightID, err)
		}
		return fmt.Errorf("fight %s is %s: %w", fightID, state, ErrFightNotOpen)
	}
	return nil
}

func (t *postgresTx) CancelOpenOrders(ctx context.Context, fightID string, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders
		 SET status = 'CANCELLED', cancelled_at = $2
		 WHERE fight_id = $1 AND status IN ('OPEN', 'PARTIALLY_FILLED')`,
		fightID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel orders for fight %s: %w", fightID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) PositionsByFight(ctx context.Context, fightID string) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx, positionsByFightSQL, fightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (t *postgresTx) MarkPositionSettled(ctx context.Context, positionID string, pnl decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE positions
		 SET settled = TRUE, settlement_pnl = $2::NUMERIC, settled_at = $3
		 WHERE id = $1`,
		positionID, pnl.String(), at,
	)
	if err != nil {
		return fmt.Errorf("mark position %s settled: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) IncrementCredits(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var credits string
	err := t.tx.QueryRow(ctx,
		`UPDATE users SET credits = credits + $2::NUMERIC
		 WHERE id = $1
		 RETURNING credits::TEXT`,
		userID, amount.String(),
	).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("increment credits for %s: %w", userID, err)
	}
	balance, _ := decimal.NewFromString(credits)
	return balance, nil
}

func (t *postgresTx) InsertCreditTransaction(ctx context.Context, ct *model.CreditTransaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO credit_transactions
		     (id, user_id, type, amount, fee, balance_after, description, related_id, related_type, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10)`,
		ct.ID, ct.UserID, ct.Type,
		ct.Amount.String(), ct.Fee.String(), ct.BalanceAfter.String(),
		ct.Description, ct.RelatedID, ct.RelatedType, ct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit transaction for %s: %w", ct.UserID, err)
	}
	return nil
}

const positionsByFightSQL = `SELECT id, user_id, fight_id, league, side, quantity,
       avg_cost_basis::TEXT, realized_pnl::TEXT, settlement_pnl::TEXT,
       settled, settled_at
 FROM positions WHERE fight_id = $1 ORDER BY id`

// pgxRows narrows pgx.Rows to what scanPositions needs.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPositions(rows pgxRows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var avgCost, realized string
		var settlementPnl *string

		if err := rows.Scan(&p.ID, &p.UserID, &p.FightID, &p.League, &p.Side,
			&p.Quantity, &avgCost, &realized, &settlementPnl,
			&p.Settled, &p.SettledAt); err != nil {
			return nil, err
		}

		p.AvgCostBasis, _ = decimal.NewFromString(avgCost)
		p.RealizedPnl, _ = decimal.NewFromString(realized)
		if settlementPnl != nil {
			pnl, _ := decimal.NewFromString(*settlementPnl)
			p.SettlementPnl = &pnl
		}

		positions = append(positions, p)
	}
	return positions, rows.Err()
}
