package settle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// UpperTierFeeRate is the platform's cut of settlement profit on
// REGIONAL, GRAND, and INVITATIONAL fights.
var UpperTierFeeRate = decimal.NewFromFloat(0.05)

// ErrUnknownFeeSchedule is returned for a tier×league combination outside
// the enumerated schedule. Unmapped combinations are a configuration
// error, never a silent default.
var ErrUnknownFeeSchedule = errors.New("settle: no fee schedule for tier/league")

// FeeRate returns the fee rate for a tier×league combination. Every
// combination is enumerated explicitly: AGENT league fights are fee-exempt
// at every tier, LOCAL fights are free for everyone, and the upper tiers
// take UpperTierFeeRate of profit.
func FeeRate(tier model.Tier, league model.League) (decimal.Decimal, error) {
	switch league {
	case model.LeagueAgent:
		switch tier {
		case model.TierLocal, model.TierRegional, model.TierGrand, model.TierInvitational:
			return decimal.Zero, nil
		}
	case model.LeagueHuman:
		switch tier {
		case model.TierLocal:
			return decimal.Zero, nil
		case model.TierRegional, model.TierGrand, model.TierInvitational:
			return UpperTierFeeRate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: tier=%q league=%q", ErrUnknownFeeSchedule, tier, league)
}

// Fee computes the platform fee on a settlement profit. Only positive
// profit is fee'd — refunds and losses never are — and the amount is
// floored, so rounding always favors the user.
func Fee(profit decimal.Decimal, tier model.Tier, league model.League) (decimal.Decimal, error) {
	rate, err := FeeRate(tier, league)
	if err != nil {
		return decimal.Zero, err
	}
	if profit.Sign() <= 0 || rate.IsZero() {
		return decimal.Zero, nil
	}
	return profit.Mul(rate).Floor(), nil
}
