package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fightbook/settlement-engine/internal/model"
)

func d(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents)
}

func newFight(id string) *model.Fight {
	return &model.Fight{
		ID:           id,
		League:       model.LeagueHuman,
		Tier:         model.TierLocal,
		TradingState: model.StateOpen,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryStore_TransitionFight(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateFight(ctx, newFight("f1"))

	err := ms.RunInTx(ctx, func(tx Tx) error {
		return tx.TransitionFight(ctx, "f1", model.StateOpen, model.StateSettlement)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, _ := ms.GetFight(ctx, "f1")
	if f.TradingState != model.StateSettlement {
		t.Errorf("expected SETTLEMENT, got %s", f.TradingState)
	}
}

func TestMemoryStore_TransitionFight_WrongState(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateFight(ctx, newFight("f1"))

	// A transition expecting SETTLEMENT fails while the fight is OPEN.
	err := ms.RunInTx(ctx, func(tx Tx) error {
		return tx.TransitionFight(ctx, "f1", model.StateSettlement, model.StateClosed)
	})
	if !errors.Is(err, ErrFightNotOpen) {
		t.Fatalf("expected ErrFightNotOpen, got %v", err)
	}

	f, _ := ms.GetFight(ctx, "f1")
	if f.TradingState != model.StateOpen {
		t.Errorf("failed transition must not write, got %s", f.TradingState)
	}
}

func TestMemoryStore_TransitionFight_IllegalEdge(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateFight(ctx, newFight("f1"))

	// OPEN -> CLOSED skips SETTLEMENT and must be rejected.
	err := ms.RunInTx(ctx, func(tx Tx) error {
		return tx.TransitionFight(ctx, "f1", model.StateOpen, model.StateClosed)
	})
	if err == nil {
		t.Fatal("expected error for illegal transition")
	}
}

func TestMemoryStore_RunInTx_RollsBackOnError(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateFight(ctx, newFight("f1"))
	ms.CreateUser(ctx, &model.User{ID: "alice", Credits: d(100)})
	ms.CreateOrder(ctx, &model.Order{
		ID: "o1", UserID: "alice", FightID: "f1",
		Side: model.SideYes, Price: d(50), Quantity: 1,
		Status: model.OrderOpen, CreatedAt: time.Now().UTC(),
	})

	boom := errors.New("boom")
	err := ms.RunInTx(ctx, func(tx Tx) error {
		if err := tx.TransitionFight(ctx, "f1", model.StateOpen, model.StateSettlement); err != nil {
			return err
		}
		if _, err := tx.CancelOpenOrders(ctx, "f1", time.Now().UTC()); err != nil {
			return err
		}
		if _, err := tx.IncrementCredits(ctx, "alice", d(500)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	f, _ := ms.GetFight(ctx, "f1")
	if f.TradingState != model.StateOpen {
		t.Errorf("fight must roll back to OPEN, got %s", f.TradingState)
	}
	u, _ := ms.GetUser(ctx, "alice")
	if !u.Credits.Equal(d(100)) {
		t.Errorf("credits must roll back to 100, got %s", u.Credits)
	}
	orders, _ := ms.OrdersByFight(ctx, "f1")
	if orders[0].Status != model.OrderOpen {
		t.Errorf("order must roll back to OPEN, got %s", orders[0].Status)
	}
}

func TestMemoryStore_CancelOpenOrders_Selective(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	statuses := map[string]model.OrderStatus{
		"o1": model.OrderOpen,
		"o2": model.OrderPartiallyFilled,
		"o3": model.OrderFilled,
		"o4": model.OrderCancelled,
	}
	for id, status := range statuses {
		ms.CreateOrder(ctx, &model.Order{
			ID: id, UserID: "alice", FightID: "f1",
			Side: model.SideYes, Price: d(50), Quantity: 1,
			Status: status, CreatedAt: now,
		})
	}

	var n int64
	ms.RunInTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.CancelOpenOrders(ctx, "f1", now)
		return err
	})
	if n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}

	orders, _ := ms.OrdersByFight(ctx, "f1")
	for _, o := range orders {
		switch o.ID {
		case "o1", "o2":
			if o.Status != model.OrderCancelled || o.CancelledAt == nil {
				t.Errorf("order %s must be cancelled with timestamp", o.ID)
			}
		case "o3":
			if o.Status != model.OrderFilled {
				t.Errorf("filled order must be untouched, got %s", o.Status)
			}
		case "o4":
			if o.CancelledAt != nil {
				t.Error("already-cancelled order must not be restamped")
			}
		}
	}
}

func TestMemoryStore_IncrementCredits_ReturnsBalanceAfter(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateUser(ctx, &model.User{ID: "alice", Credits: d(100)})

	var balance decimal.Decimal
	ms.RunInTx(ctx, func(tx Tx) error {
		var err error
		balance, err = tx.IncrementCredits(ctx, "alice", d(250))
		return err
	})
	if !balance.Equal(d(350)) {
		t.Errorf("expected balance 350, got %s", balance)
	}
}

func TestMemoryStore_IncrementCredits_UnknownUser(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	err := ms.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.IncrementCredits(ctx, "ghost", d(1))
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TransactionsByUser_NewestFirst(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	ms.RunInTx(ctx, func(tx Tx) error {
		for i, id := range []string{"t1", "t2", "t3"} {
			tx.InsertCreditTransaction(ctx, &model.CreditTransaction{
				ID: id, UserID: "alice", Type: model.TxTypeSettlement,
				Amount: d(100), Fee: d(0), BalanceAfter: d(100),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
		}
		return nil
	})

	txs, _ := ms.TransactionsByUser(ctx, "alice", 2)
	if len(txs) != 2 {
		t.Fatalf("expected limit 2, got %d", len(txs))
	}
	if txs[0].ID != "t3" || txs[1].ID != "t2" {
		t.Errorf("expected newest first, got %s, %s", txs[0].ID, txs[1].ID)
	}
}

func TestMemoryStore_MarkPositionSettled(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreatePosition(ctx, &model.Position{
		ID: "p1", UserID: "alice", FightID: "f1",
		Side: model.SideYes, Quantity: 10, AvgCostBasis: d(60),
	})

	now := time.Now().UTC()
	ms.RunInTx(ctx, func(tx Tx) error {
		return tx.MarkPositionSettled(ctx, "p1", d(400), now)
	})

	positions, _ := ms.PositionsByFight(ctx, "f1")
	p := positions[0]
	if !p.Settled || p.SettlementPnl == nil || !p.SettlementPnl.Equal(d(400)) {
		t.Error("position must be settled with pnl 400")
	}
	if p.SettledAt == nil || !p.SettledAt.Equal(now) {
		t.Error("settledAt must match the settlement timestamp")
	}
}
