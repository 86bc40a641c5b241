package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/internal/transport/httpapi/middleware"
	"github.com/splitzy/expense-service/pkg/money"
)

// BalanceHandler handles pairwise balance HTTP requests
type BalanceHandler struct {
	svc *ledger.Service
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(svc *ledger.Service) *BalanceHandler {
	return &BalanceHandler{svc: svc}
}

// BalanceListResponse lists every non-zero balance for the authenticated
// user. A positive amount means the user owes the other party.
type BalanceListResponse struct {
	Balances []ledger.UserBalance `json:"balances"`
}

// PairBalanceResponse is the signed balance against a single user
type PairBalanceResponse struct {
	OtherUserID uuid.UUID   `json:"other_user_id"`
	Amount      money.Money `json:"amount"`
}

// SettleBalanceRequest represents a direct payment between two users
type SettleBalanceRequest struct {
	Amount money.Money `json:"amount"`
}

// ListBalances handles GET /balances
func (h *BalanceHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	balances, err := h.svc.ListBalances(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if balances == nil {
		balances = []ledger.UserBalance{}
	}

	respondJSON(w, BalanceListResponse{Balances: balances}, http.StatusOK)
}

// GetBalance handles GET /balances/{userID}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	otherUserID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	amount, err := h.svc.GetBalance(r.Context(), userID, otherUserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, PairBalanceResponse{OtherUserID: otherUserID, Amount: amount}, http.StatusOK)
}

// SettleBalance handles POST /balances/{userID}/settle, recording a direct
// payment that moves the pair balance toward zero
func (h *BalanceHandler) SettleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	otherUserID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	var req SettleBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.SettlePairBalance(r.Context(), userID, otherUserID, req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}

	amount, err := h.svc.GetBalance(r.Context(), userID, otherUserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, PairBalanceResponse{OtherUserID: otherUserID, Amount: amount}, http.StatusOK)
}
