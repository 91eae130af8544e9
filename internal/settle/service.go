package settle

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fightbook/settlement-engine/internal/model"
	"github.com/fightbook/settlement-engine/internal/store"
)

// Service exposes the settlement engine and its read surface over HTTP.
type Service struct {
	store  store.Store
	engine *Engine
	wsHub  *WSHub // optional WebSocket hub for settlement broadcasts
}

// NewService creates a new settlement service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, engine *Engine, hub *WSHub) *Service {
	return &Service{
		store:  st,
		engine: engine,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// CreateFightRequest is the JSON body for fight registration.
type CreateFightRequest struct {
	ID     string `json:"id,omitempty"` // generated when empty
	League string `json:"league"`       // HUMAN or AGENT
	Tier   string `json:"tier"`         // LOCAL, REGIONAL, GRAND, INVITATIONAL
}

// SettleRequest is the JSON body for POST /fights/{fightID}/settle.
// Tier and league default to the fight record when omitted.
type SettleRequest struct {
	Outcome     string `json:"outcome"` // WINNER, DRAW, or CANCELLED
	WinningSide string `json:"winning_side,omitempty"`
	Tier        string `json:"tier,omitempty"`
	League      string `json:"league,omitempty"`
}

var validLeagues = map[model.League]bool{
	model.LeagueHuman: true,
	model.LeagueAgent: true,
}

var validTiers = map[model.Tier]bool{
	model.TierLocal:        true,
	model.TierRegional:     true,
	model.TierGrand:        true,
	model.TierInvitational: true,
}

// --- HTTP Handlers ---

// CreateFight handles POST /api/v1/fights
func (s *Service) CreateFight(w http.ResponseWriter, r *http.Request) {
	var req CreateFightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	league := model.League(req.League)
	if !validLeagues[league] {
		writeError(w, "league must be HUMAN or AGENT", http.StatusBadRequest)
		return
	}
	tier := model.Tier(req.Tier)
	if !validTiers[tier] {
		writeError(w, "tier must be LOCAL, REGIONAL, GRAND, or INVITATIONAL", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	fight := &model.Fight{
		ID:           id,
		League:       league,
		Tier:         tier,
		TradingState: model.StateOpen,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateFight(r.Context(), fight); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("fight created",
		"id", fight.ID,
		"league", league,
		"tier", tier,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(fight)
}

// GetFight handles GET /api/v1/fights/{fightID}
func (s *Service) GetFight(w http.ResponseWriter, r *http.Request) {
	fightID := chi.URLParam(r, "fightID")

	fight, err := s.store.GetFight(r.Context(), fightID)
	if err != nil {
		writeError(w, "fight not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fight)
}

// GetFightPositions handles GET /api/v1/fights/{fightID}/positions
func (s *Service) GetFightPositions(w http.ResponseWriter, r *http.Request) {
	fightID := chi.URLParam(r, "fightID")

	positions, err := s.store.PositionsByFight(r.Context(), fightID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// GetFightOrders handles GET /api/v1/fights/{fightID}/orders
func (s *Service) GetFightOrders(w http.ResponseWriter, r *http.Request) {
	fightID := chi.URLParam(r, "fightID")

	orders, err := s.store.OrdersByFight(r.Context(), fightID)
	if err != nil {
		writeError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// SettleFight handles POST /api/v1/fights/{fightID}/settle
// Resolves every position and order of the fight in one transaction and
// returns the settlement summary.
func (s *Service) SettleFight(w http.ResponseWriter, r *http.Request) {
	fightID := chi.URLParam(r, "fightID")

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := parseOutcome(req.Outcome, req.WinningSide)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	tier := model.Tier(req.Tier)
	league := model.League(req.League)
	if req.Tier == "" || req.League == "" {
		fight, err := s.store.GetFight(ctx, fightID)
		if err != nil {
			writeError(w, "fight not found", http.StatusNotFound)
			return
		}
		if req.Tier == "" {
			tier = fight.Tier
		}
		if req.League == "" {
			league = fight.League
		}
	}

	result, err := s.engine.Settle(ctx, SettlementInput{
		FightID: fightID,
		Outcome: outcome,
		Tier:    tier,
		League:  league,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidOutcome), errors.Is(err, ErrUnknownFeeSchedule):
			writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrFightNotOpen):
			writeError(w, "fight is not open for settlement", http.StatusConflict)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "fight not found", http.StatusNotFound)
		default:
			slog.Error("settlement failed", "fight", fightID, "err", err)
			writeError(w, "settlement failed", http.StatusInternalServerError)
		}
		return
	}

	slog.Info("fight settled",
		"fight", fightID,
		"outcome", OutcomeLabel(outcome),
		"positions", result.SettledPositions,
		"payouts", result.TotalPayouts.String(),
		"fees", result.TotalFees.String(),
		"cancelled_orders", result.CancelledOrders,
	)

	// Broadcast the settlement via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:             "fight_settled",
			FightID:          fightID,
			Outcome:          OutcomeLabel(outcome),
			SettledPositions: result.SettledPositions,
			TotalPayouts:     result.TotalPayouts.String(),
			TotalFees:        result.TotalFees.String(),
			CancelledOrders:  result.CancelledOrders,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetUserTransactions handles GET /api/v1/users/{userID}/transactions
func (s *Service) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	txs, err := s.store.TransactionsByUser(r.Context(), userID, 100)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.CreditTransaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// GetUserBalance handles GET /api/v1/users/{userID}/balance
func (s *Service) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// parseOutcome converts wire strings into the outcome sum type.
func parseOutcome(outcome, winningSide string) (model.Outcome, error) {
	switch outcome {
	case "WINNER":
		side := model.Side(winningSide)
		if side != model.SideYes && side != model.SideNo {
			return nil, model.ErrInvalidOutcome
		}
		return model.Winner{Side: side}, nil
	case "DRAW":
		return model.Draw{}, nil
	case "CANCELLED":
		return model.Cancelled{}, nil
	default:
		return nil, model.ErrInvalidOutcome
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
