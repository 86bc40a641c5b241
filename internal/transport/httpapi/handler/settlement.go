package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/pkg/money"
)

// SettlementHandler handles split settlement HTTP requests
type SettlementHandler struct {
	svc *ledger.Service
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(svc *ledger.Service) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

// SettleSplitRequest represents the settlement request body. A missing
// amount settles the split's full remainder.
type SettleSplitRequest struct {
	Amount *money.Money `json:"amount,omitempty"`
}

// SettleSplit handles POST /splits/{id}/settle
func (h *SettlementHandler) SettleSplit(w http.ResponseWriter, r *http.Request) {
	splitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid split ID", http.StatusBadRequest)
		return
	}

	var req SettleSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var e *ledger.Expense
	if req.Amount != nil {
		e, err = h.svc.SettleSplit(r.Context(), splitID, *req.Amount)
	} else {
		e, err = h.svc.SettleSplitFully(r.Context(), splitID)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, toExpenseResponse(e), http.StatusOK)
}
