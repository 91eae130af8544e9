package settle

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

// d is a test helper for creating decimals from int64 cents.
func d(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents)
}

func pos(side model.Side, qty int64, avgCost int64) model.Position {
	return model.Position{
		ID:           "p1",
		UserID:       "user1",
		FightID:      "fight1",
		Side:         side,
		Quantity:     qty,
		AvgCostBasis: d(avgCost),
	}
}

// --- Winner ---

func TestResolve_WinnerMatchingSide(t *testing.T) {
	res, err := Resolve(model.Winner{Side: model.SideYes}, pos(model.SideYes, 10, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.GrossPayout.Equal(d(1000)) {
		t.Errorf("expected gross 1000, got %s", res.GrossPayout)
	}
	if !res.SettlementPnl.Equal(d(400)) {
		t.Errorf("expected pnl 400, got %s", res.SettlementPnl)
	}
}

func TestResolve_WinnerOtherSide(t *testing.T) {
	res, err := Resolve(model.Winner{Side: model.SideYes}, pos(model.SideNo, 10, 40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.GrossPayout.Equal(d(0)) {
		t.Errorf("losing side should pay out 0, got %s", res.GrossPayout)
	}
	if !res.SettlementPnl.Equal(d(-400)) {
		t.Errorf("expected pnl -400, got %s", res.SettlementPnl)
	}
}

func TestResolve_WinnerNo(t *testing.T) {
	res, err := Resolve(model.Winner{Side: model.SideNo}, pos(model.SideNo, 3, 25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.GrossPayout.Equal(d(300)) {
		t.Errorf("expected gross 300, got %s", res.GrossPayout)
	}
	if !res.SettlementPnl.Equal(d(225)) {
		t.Errorf("expected pnl 225, got %s", res.SettlementPnl)
	}
}

// --- Draw / Cancelled ---

func TestResolve_DrawRefundsEitherSide(t *testing.T) {
	yes, err := Resolve(model.Draw{}, pos(model.SideYes, 10, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	no, err := Resolve(model.Draw{}, pos(model.SideNo, 5, 40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !yes.GrossPayout.Equal(d(600)) {
		t.Errorf("expected YES refund 600, got %s", yes.GrossPayout)
	}
	if !no.GrossPayout.Equal(d(200)) {
		t.Errorf("expected NO refund 200, got %s", no.GrossPayout)
	}
	if !yes.SettlementPnl.IsZero() || !no.SettlementPnl.IsZero() {
		t.Errorf("draw pnl must be zero, got %s and %s", yes.SettlementPnl, no.SettlementPnl)
	}
}

func TestResolve_CancelledMatchesDraw(t *testing.T) {
	p := pos(model.SideYes, 5, 70)

	cancelled, err := Resolve(model.Cancelled{}, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	draw, _ := Resolve(model.Draw{}, p)

	if !cancelled.GrossPayout.Equal(d(350)) {
		t.Errorf("expected refund 350, got %s", cancelled.GrossPayout)
	}
	if !cancelled.GrossPayout.Equal(draw.GrossPayout) ||
		!cancelled.SettlementPnl.Equal(draw.SettlementPnl) {
		t.Error("cancelled must resolve identically to draw")
	}
}

// --- Degenerate positions ---

func TestResolve_ZeroQuantity(t *testing.T) {
	outcomes := []model.Outcome{
		model.Winner{Side: model.SideYes},
		model.Winner{Side: model.SideNo},
		model.Draw{},
		model.Cancelled{},
	}
	for _, o := range outcomes {
		res, err := Resolve(o, pos(model.SideYes, 0, 60))
		if err != nil {
			t.Fatalf("unexpected error for %T: %v", o, err)
		}
		if !res.GrossPayout.IsZero() || !res.SettlementPnl.IsZero() {
			t.Errorf("zero quantity should yield zeros under %T, got gross=%s pnl=%s",
				o, res.GrossPayout, res.SettlementPnl)
		}
	}
}

func TestResolve_InvalidOutcome(t *testing.T) {
	_, err := Resolve(nil, pos(model.SideYes, 10, 60))
	if err != model.ErrInvalidOutcome {
		t.Errorf("expected ErrInvalidOutcome, got %v", err)
	}
}
