package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splitzy/expense-service/internal/ledger"
	apperrors "github.com/splitzy/expense-service/internal/shared/errors"
	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/pkg/money"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondDomainError maps domain errors onto HTTP statuses. Internal
// failures get a generic message; client faults carry the error text.
func respondDomainError(w http.ResponseWriter, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		respondJSON(w, ErrorResponse{Error: appErr.Message, Code: appErr.Code}, statusForCode(appErr.Code))
		return
	}

	switch {
	case errors.Is(err, ledger.ErrExpenseNotFound),
		errors.Is(err, ledger.ErrSplitNotFound):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeNotFound}, http.StatusNotFound)

	case errors.Is(err, money.ErrCurrencyMismatch):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeCurrencyMismatch}, http.StatusBadRequest)
	case errors.Is(err, money.ErrNegativeAmount):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeNegativeAmount}, http.StatusBadRequest)
	case errors.Is(err, split.ErrInvalidInput):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeInvalidSplitInput}, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInvalidExpense),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSelfPair),
		errors.Is(err, money.ErrInvalidCurrency):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeValidation}, http.StatusBadRequest)

	case errors.Is(err, ledger.ErrInvalidState):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeInvalidState}, http.StatusConflict)
	case errors.Is(err, ledger.ErrOverSettlement):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeOverSettlement}, http.StatusConflict)
	case errors.Is(err, ledger.ErrSettlementConflict):
		respondJSON(w, ErrorResponse{Error: err.Error(), Code: apperrors.ErrCodeSettlementConflict}, http.StatusConflict)

	case errors.Is(err, ledger.ErrLedgerApply):
		respondJSON(w, ErrorResponse{Error: "ledger update could not be applied, please retry", Code: apperrors.ErrCodeLedgerApply}, http.StatusServiceUnavailable)

	default:
		respondJSON(w, ErrorResponse{Error: "internal server error", Code: apperrors.ErrCodeInternal}, http.StatusInternalServerError)
	}
}

func statusForCode(code string) int {
	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeBadRequest,
		apperrors.ErrCodeCurrencyMismatch, apperrors.ErrCodeNegativeAmount,
		apperrors.ErrCodeInvalidSplitInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeConflict, apperrors.ErrCodeInvalidState,
		apperrors.ErrCodeOverSettlement, apperrors.ErrCodeSettlementConflict:
		return http.StatusConflict
	case apperrors.ErrCodeLedgerApply:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
