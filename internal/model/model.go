// Package model defines the core domain types shared across the settlement
// engine. All monetary values use shopspring/decimal — never float64 for
// money. Amounts are denominated in cents.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DMMSystemID is the house market-maker sentinel. Its positions settle for
// paper P&L only: no CreditTransaction and no balance mutation, ever.
const DMMSystemID = "DMM"

// ContractPayoutCents is what one winning contract redeems for.
var ContractPayoutCents = decimal.NewFromInt(100)

// Side is a binary contract side.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// League classifies the competitors of a fight.
type League string

const (
	LeagueHuman League = "HUMAN"
	LeagueAgent League = "AGENT"
)

// Tier is a fight's prestige classification; it drives the fee schedule.
type Tier string

const (
	TierLocal        Tier = "LOCAL"
	TierRegional     Tier = "REGIONAL"
	TierGrand        Tier = "GRAND"
	TierInvitational Tier = "INVITATIONAL"
)

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Fight is one contest whose YES/NO contracts trade until settlement.
type Fight struct {
	ID           string       `json:"id" db:"id"`
	League       League       `json:"league" db:"league"`
	Tier         Tier         `json:"tier" db:"tier"`
	TradingState TradingState `json:"trading_state" db:"trading_state"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	SettledAt    *time.Time   `json:"settled_at,omitempty" db:"settled_at"`
}

// Position is one user's stake in one fight/side. Created by the order
// matching subsystem, mutated exactly once by settlement, never deleted.
type Position struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	FightID       string           `json:"fight_id" db:"fight_id"`
	League        League           `json:"league" db:"league"`
	Side          Side             `json:"side" db:"side"`
	Quantity      int64            `json:"quantity" db:"quantity"`             // whole contracts, >= 0
	AvgCostBasis  decimal.Decimal  `json:"avg_cost_basis" db:"avg_cost_basis"` // cents per contract, 0-100
	RealizedPnl   decimal.Decimal  `json:"realized_pnl" db:"realized_pnl"`
	SettlementPnl *decimal.Decimal `json:"settlement_pnl,omitempty" db:"settlement_pnl"` // nil until settled
	Settled       bool             `json:"settled" db:"settled"`
	SettledAt     *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

// Order is a resting instruction to trade. Settlement only touches
// OPEN/PARTIALLY_FILLED orders belonging to the fight.
type Order struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	FightID     string          `json:"fight_id" db:"fight_id"`
	Side        Side            `json:"side" db:"side"`
	Price       decimal.Decimal `json:"price" db:"price"` // cents per contract
	Quantity    int64           `json:"quantity" db:"quantity"`
	Status      OrderStatus     `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// User holds a credits balance, incremented atomically alongside each
// CreditTransaction.
type User struct {
	ID      string          `json:"id" db:"id"`
	Credits decimal.Decimal `json:"credits" db:"credits"` // cents
}

// TxTypeSettlement is the CreditTransaction type written by settlement.
const TxTypeSettlement = "SETTLEMENT"

// RelatedTypeFight is the relatedType tag on settlement transactions.
const RelatedTypeFight = "fight"

// CreditTransaction is an immutable ledger entry. Once created, these are
// never modified or deleted.
type CreditTransaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Type         string          `json:"type" db:"type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"` // gross, pre-fee
	Fee          decimal.Decimal `json:"fee" db:"fee"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	Description  string          `json:"description" db:"description"`
	RelatedID    string          `json:"related_id" db:"related_id"`
	RelatedType  string          `json:"related_type" db:"related_type"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
