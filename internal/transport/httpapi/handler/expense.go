package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/internal/transport/httpapi/middleware"
	"github.com/splitzy/expense-service/pkg/money"
)

// ExpenseHandler handles expense lifecycle HTTP requests
type ExpenseHandler struct {
	svc *ledger.Service
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(svc *ledger.Service) *ExpenseHandler {
	return &ExpenseHandler{svc: svc}
}

// ParticipantInput is one participant's share input in a request body.
// Percentage and Weight are decimal strings to keep exact values.
type ParticipantInput struct {
	UserID     uuid.UUID    `json:"user_id"`
	Amount     *money.Money `json:"amount,omitempty"`
	Percentage *string      `json:"percentage,omitempty"`
	Shares     *int64       `json:"shares,omitempty"`
	Weight     *string      `json:"weight,omitempty"`
}

// CreateExpenseRequest represents the expense creation request body
type CreateExpenseRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	TotalAmount  money.Money        `json:"total_amount"`
	PayerID      *uuid.UUID         `json:"payer_id,omitempty"`
	Date         *time.Time         `json:"date,omitempty"`
	Category     string             `json:"category"`
	SplitType    string             `json:"split_type"`
	GroupID      *uuid.UUID         `json:"group_id,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	ReceiptURL   string             `json:"receipt_url,omitempty"`
	Participants []ParticipantInput `json:"participants"`
}

// UpdateExpenseRequest represents the expense edit request body. Absent
// fields keep their current values.
type UpdateExpenseRequest struct {
	Title        *string            `json:"title,omitempty"`
	Description  *string            `json:"description,omitempty"`
	TotalAmount  *money.Money       `json:"total_amount,omitempty"`
	Date         *time.Time         `json:"date,omitempty"`
	Category     *string            `json:"category,omitempty"`
	SplitType    *string            `json:"split_type,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	ReceiptURL   *string            `json:"receipt_url,omitempty"`
	Participants []ParticipantInput `json:"participants,omitempty"`
}

// SplitResponse is a single split in an expense response
type SplitResponse struct {
	ID            uuid.UUID   `json:"id"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	Amount        money.Money `json:"amount"`
	Percentage    *string     `json:"percentage,omitempty"`
	Shares        *int64      `json:"shares,omitempty"`
	SettledAmount money.Money `json:"settled_amount"`
	Remaining     money.Money `json:"remaining_amount"`
	Settled       bool        `json:"settled"`
}

// ExpenseResponse represents an expense with its splits
type ExpenseResponse struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	TotalAmount money.Money     `json:"total_amount"`
	PayerID     uuid.UUID       `json:"payer_id"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	SplitType   string          `json:"split_type"`
	GroupID     *uuid.UUID      `json:"group_id,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	Status      string          `json:"status"`
	Splits      []SplitResponse `json:"splits"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toExpenseResponse(e *ledger.Expense) ExpenseResponse {
	splits := make([]SplitResponse, len(e.Splits))
	for i, sp := range e.Splits {
		var percentage *string
		if sp.Percentage != nil {
			s := sp.Percentage.String()
			percentage = &s
		}
		splits[i] = SplitResponse{
			ID:            sp.ID,
			ParticipantID: sp.ParticipantID,
			Amount:        sp.Amount,
			Percentage:    percentage,
			Shares:        sp.Shares,
			SettledAmount: sp.SettledAmount,
			Remaining:     sp.RemainingAmount(),
			Settled:       sp.IsSettled(),
		}
	}
	return ExpenseResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		TotalAmount: e.TotalAmount,
		PayerID:     e.PayerID,
		Date:        e.Date,
		Category:    string(e.Category),
		SplitType:   string(e.SplitType),
		GroupID:     e.GroupID,
		Notes:       e.Notes,
		ReceiptURL:  e.ReceiptURL,
		Status:      string(e.Status),
		Splits:      splits,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// toSplitInputs converts request participants into split inputs
func toSplitInputs(participants []ParticipantInput) ([]split.Input, error) {
	inputs := make([]split.Input, len(participants))
	for i, p := range participants {
		in := split.Input{
			ParticipantID: p.UserID,
			Amount:        p.Amount,
			Shares:        p.Shares,
		}
		if p.Percentage != nil {
			d, err := decimal.NewFromString(*p.Percentage)
			if err != nil {
				return nil, err
			}
			in.Percentage = &d
		}
		if p.Weight != nil {
			d, err := decimal.NewFromString(*p.Weight)
			if err != nil {
				return nil, err
			}
			in.Weight = &d
		}
		inputs[i] = in
	}
	return inputs, nil
}

// CreateExpense handles POST /expenses
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		respondError(w, "title is required", http.StatusBadRequest)
		return
	}
	if len(req.Participants) == 0 {
		respondError(w, "participants are required", http.StatusBadRequest)
		return
	}

	payerID := uuid.Nil
	if req.PayerID != nil {
		payerID = *req.PayerID
	} else if authedID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		payerID = authedID
	}
	if payerID == uuid.Nil {
		respondError(w, "payer_id is required", http.StatusBadRequest)
		return
	}

	inputs, err := toSplitInputs(req.Participants)
	if err != nil {
		respondError(w, "invalid participant input: "+err.Error(), http.StatusBadRequest)
		return
	}

	in := ledger.CreateExpenseInput{
		Title:       req.Title,
		Description: req.Description,
		TotalAmount: req.TotalAmount,
		PayerID:     payerID,
		Category:    ledger.Category(req.Category),
		SplitType:   split.Type(req.SplitType),
		GroupID:     req.GroupID,
		Notes:       req.Notes,
		ReceiptURL:  req.ReceiptURL,
		Inputs:      inputs,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}

	e, err := h.svc.CreateExpense(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, toExpenseResponse(e), http.StatusCreated)
}

// GetExpense handles GET /expenses/{id}
func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid expense ID", http.StatusBadRequest)
		return
	}

	e, err := h.svc.GetExpense(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, toExpenseResponse(e), http.StatusOK)
}

// UpdateExpense handles PUT /expenses/{id}
func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid expense ID", http.StatusBadRequest)
		return
	}

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	in := ledger.EditExpenseInput{
		Title:       req.Title,
		Description: req.Description,
		TotalAmount: req.TotalAmount,
		Date:        req.Date,
		Notes:       req.Notes,
		ReceiptURL:  req.ReceiptURL,
	}
	if req.Category != nil {
		c := ledger.Category(*req.Category)
		in.Category = &c
	}
	if req.SplitType != nil {
		t := split.Type(*req.SplitType)
		in.SplitType = &t
	}
	if req.Participants != nil {
		inputs, err := toSplitInputs(req.Participants)
		if err != nil {
			respondError(w, "invalid participant input: "+err.Error(), http.StatusBadRequest)
			return
		}
		in.Inputs = inputs
	}

	e, err := h.svc.EditExpense(r.Context(), id, in)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, toExpenseResponse(e), http.StatusOK)
}

// CancelExpense handles DELETE /expenses/{id}. Cancelling reverses the
// unsettled remainder of every split; the record itself is kept.
func (h *ExpenseHandler) CancelExpense(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid expense ID", http.StatusBadRequest)
		return
	}

	e, err := h.svc.CancelExpense(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, toExpenseResponse(e), http.StatusOK)
}
