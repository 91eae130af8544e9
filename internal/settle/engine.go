// Package settle implements fight settlement: when a fight's outcome is
// known, one atomic transaction freezes trading, cancels resting orders,
// resolves every position, posts payouts and fees to the ledger, and
// closes the fight.
//
// All monetary values use shopspring/decimal — never float64 for money.
package settle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/metrics"
	"github.com/fightbook/settlement-engine/internal/model"
	"github.com/fightbook/settlement-engine/internal/store"
)

// SettlementInput names the fight to settle and how.
type SettlementInput struct {
	FightID string
	Outcome model.Outcome
	Tier    model.Tier
	League  model.League
}

// SettlementResult summarizes one completed settlement. TotalPayouts and
// TotalFees cover only amounts actually credited — house positions and
// zero-payout positions contribute nothing.
type SettlementResult struct {
	SettledPositions int             `json:"settled_positions"`
	TotalPayouts     decimal.Decimal `json:"total_payouts"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	CancelledOrders  int64           `json:"cancelled_orders"`
}

// Engine orchestrates settlement. Uses a mutex for serialized settlement
// execution (single-instance); the conditional OPEN→SETTLEMENT update in
// the store is what makes concurrent settlement safe across instances.
type Engine struct {
	store store.Store
	mu    sync.Mutex
}

// NewEngine creates a settlement engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Settle resolves a fight in one all-or-nothing transaction:
//
//  1. fight OPEN → SETTLEMENT (conditional update, rejects re-settlement)
//  2. cancel all OPEN/PARTIALLY_FILLED orders for the fight
//  3. resolve each position, charge fees, credit winners and refunds
//  4. fight SETTLEMENT → CLOSED
//
// Invalid outcomes and unmapped fee schedules fail before any mutation.
// Any storage error rolls back every write; the caller may retry the whole
// call once the underlying issue is resolved.
func (e *Engine) Settle(ctx context.Context, in SettlementInput) (*SettlementResult, error) {
	// Fail fast before touching storage.
	if err := model.ValidateOutcome(in.Outcome); err != nil {
		metrics.SettlementFailures.WithLabelValues("invalid_outcome").Inc()
		return nil, err
	}
	if _, err := FeeRate(in.Tier, in.League); err != nil {
		metrics.SettlementFailures.WithLabelValues("fee_schedule").Inc()
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	now := start.UTC()
	var result SettlementResult

	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		// Freeze trading. This is the exclusivity point: a concurrent or
		// repeated settle sees the fight is no longer OPEN and aborts.
		if err := tx.TransitionFight(ctx, in.FightID, model.StateOpen, model.StateSettlement); err != nil {
			return err
		}

		cancelled, err := tx.CancelOpenOrders(ctx, in.FightID, now)
		if err != nil {
			return err
		}

		positions, err := tx.PositionsByFight(ctx, in.FightID)
		if err != nil {
			return err
		}

		totalPayouts := decimal.Zero
		totalFees := decimal.Zero

		for _, p := range positions {
			res, err := Resolve(in.Outcome, p)
			if err != nil {
				return err
			}

			// Fee applies only to Winner profit; Draw/Cancelled refunds
			// settle with zero P&L and are never fee'd.
			fee := decimal.Zero
			if _, isWinner := in.Outcome.(model.Winner); isWinner {
				if fee, err = Fee(res.SettlementPnl, in.Tier, in.League); err != nil {
					return err
				}
			}
			net := res.GrossPayout.Sub(fee)

			// The house settles for paper P&L only: its positions are
			// marked settled but never touch the ledger.
			if p.UserID != model.DMMSystemID && net.Sign() > 0 {
				balance, err := tx.IncrementCredits(ctx, p.UserID, net)
				if err != nil {
					return err
				}
				if err := tx.InsertCreditTransaction(ctx, &model.CreditTransaction{
					ID:           uuid.New().String(),
					UserID:       p.UserID,
					Type:         model.TxTypeSettlement,
					Amount:       res.GrossPayout,
					Fee:          fee,
					BalanceAfter: balance,
					Description:  creditDescription(in.Outcome, p),
					RelatedID:    in.FightID,
					RelatedType:  model.RelatedTypeFight,
					CreatedAt:    now,
				}); err != nil {
					return err
				}
				totalPayouts = totalPayouts.Add(net)
				totalFees = totalFees.Add(fee)
			}

			if err := tx.MarkPositionSettled(ctx, p.ID, res.SettlementPnl, now); err != nil {
				return err
			}
		}

		// Close out trading permanently.
		if err := tx.TransitionFight(ctx, in.FightID, model.StateSettlement, model.StateClosed); err != nil {
			return err
		}

		result = SettlementResult{
			SettledPositions: len(positions),
			TotalPayouts:     totalPayouts,
			TotalFees:        totalFees,
			CancelledOrders:  cancelled,
		}
		return nil
	})
	if err != nil {
		metrics.SettlementFailures.WithLabelValues("transaction").Inc()
		return nil, err
	}

	outcome := OutcomeLabel(in.Outcome)
	metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
	metrics.SettledPositionsTotal.Add(float64(result.SettledPositions))
	metrics.CancelledOrdersTotal.Add(float64(result.CancelledOrders))
	metrics.PayoutCentsTotal.Add(result.TotalPayouts.InexactFloat64())
	metrics.FeeCentsTotal.Add(result.TotalFees.InexactFloat64())
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	return &result, nil
}

// creditDescription renders the human-readable ledger line. It is only
// called for credited positions: a winning side, or a Draw/Cancelled
// refund.
func creditDescription(outcome model.Outcome, p model.Position) string {
	if w, ok := outcome.(model.Winner); ok && p.Side == w.Side {
		return fmt.Sprintf("Settlement: %d %s won", p.Quantity, p.Side)
	}
	return fmt.Sprintf("Settlement: Refund of %d %s at entry price", p.Quantity, p.Side)
}

// OutcomeLabel renders an outcome for metric labels and broadcasts.
func OutcomeLabel(o model.Outcome) string {
	switch v := o.(type) {
	case model.Winner:
		return "WINNER_" + string(v.Side)
	case model.Draw:
		return "DRAW"
	case model.Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}
