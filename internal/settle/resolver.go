package settle

import (
	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// Resolution is the result of resolving one position against an outcome:
// the gross (pre-fee) payout owed and the settlement P&L to record.
type Resolution struct {
	GrossPayout   decimal.Decimal
	SettlementPnl decimal.Decimal
}

// Resolve computes a position's payout under the given outcome. Pure: the
// caller owns all writes. A zero-quantity position yields zeros under
// every branch.
//
//   - Winner, matching side: gross = qty × 100, pnl = (100 − avgCost) × qty
//   - Winner, other side:    gross = 0,         pnl = −avgCost × qty
//   - Draw / Cancelled:      gross = avgCost × qty (refund), pnl = 0
func Resolve(outcome model.Outcome, p model.Position) (Resolution, error) {
	qty := decimal.NewFromInt(p.Quantity)

	switch o := outcome.(type) {
	case model.Winner:
		if p.Side == o.Side {
			return Resolution{
				GrossPayout:   model.ContractPayoutCents.Mul(qty),
				SettlementPnl: model.ContractPayoutCents.Sub(p.AvgCostBasis).Mul(qty),
			}, nil
		}
		return Resolution{
			GrossPayout:   decimal.Zero,
			SettlementPnl: p.AvgCostBasis.Mul(qty).Neg(),
		}, nil

	case model.Draw, model.Cancelled:
		// Full refund at entry price, regardless of side.
		return Resolution{
			GrossPayout:   p.AvgCostBasis.Mul(qty),
			SettlementPnl: decimal.Zero,
		}, nil

	default:
		return Resolution{}, model.ErrInvalidOutcome
	}
}
