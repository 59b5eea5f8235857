package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tripledger/tripledger/internal/calculator"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/service"
)

// Handler serves the JSON API over the expense and settlement services.
type Handler struct {
	expenses    *service.ExpenseService
	settlements *service.SettlementService
}

// NewHandler creates a Handler backed by the given services.
func NewHandler(expenses *service.ExpenseService, settlements *service.SettlementService) *Handler {
	return &Handler{expenses: expenses, settlements: settlements}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/expenses", h.createExpense)
	mux.HandleFunc("GET /api/expenses/{id}", h.getExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", h.updateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", h.deleteExpense)
	mux.HandleFunc("GET /api/trips/{trip}/expenses", h.listExpenses)
	mux.HandleFunc("GET /api/trips/{trip}/settlement", h.computeSettlement)
	mux.HandleFunc("GET /api/trips/{trip}/transfers", h.listTransfers)
	mux.HandleFunc("POST /api/transfers/{id}/settle", h.settleTransfer)
	mux.HandleFunc("POST /api/payments", h.recordPayment)
	mux.HandleFunc("GET /api/categories", h.listCategories)
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	expense, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := h.expenses.CreateExpense(r.Context(), expense)
	if errors.Is(err, service.ErrValidationFailed) {
		var issues []calculator.Issue
		if result != nil {
			issues = result.Issues
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error(), issues)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create expense", nil)
		return
	}
	writeJSON(w, http.StatusCreated, expenseToResponse(expense, result))
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.expenses.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, expenseToResponse(expense, nil))
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	expense, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	expense.ID = r.PathValue("id")

	result, err := h.expenses.UpdateExpense(r.Context(), expense)
	if errors.Is(err, service.ErrValidationFailed) {
		var issues []calculator.Issue
		if result != nil {
			issues = result.Issues
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error(), issues)
		return
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, expenseToResponse(expense, result))
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.expenses.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.expenses.ListExpensesByTrip(r.Context(), r.PathValue("trip"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list expenses", nil)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseToResponse(e, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": out})
}

func (h *Handler) computeSettlement(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("trip")
	query := r.URL.Query()

	opts := service.SettlementOptions{
		BaseCurrency:            query.Get("currency"),
		Strategy:                calculator.StrategyName(query.Get("strategy")),
		IncludeCategorySpending: query.Get("categories") == "true",
		Persist:                 query.Get("persist") == "true",
	}
	if p := query.Get("participants"); p != "" {
		opts.Participants = strings.Split(p, ",")
	}

	result, err := h.settlements.ComputeSettlement(r.Context(), tripID, opts)
	if errors.Is(err, calculator.ErrBalanceConservation) {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	currency := opts.BaseCurrency
	if currency == "" {
		for _, t := range result.Transfers {
			currency = t.Currency
			break
		}
	}
	if currency == "" {
		currency = "USD"
	}
	writeJSON(w, http.StatusOK, settlementToResponse(tripID, currency, result))
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.settlements.ListTransfers(r.Context(), r.PathValue("trip"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transfers", nil)
		return
	}
	out := make([]transferDTO, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, transferToDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": out})
}

func (h *Handler) settleTransfer(w http.ResponseWriter, r *http.Request) {
	if err := h.settlements.MarkTransferSettled(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	payment := &models.Payment{
		TripID:     req.TripID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     amount,
		Currency:   req.Currency,
		Note:       req.Note,
	}
	if err := h.settlements.RecordPayment(r.Context(), payment); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"payment_id": payment.ID})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.settlements.ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories", nil)
		return
	}
	out := make([]categoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryDTO{ID: c.ID, Name: c.Name, Color: c.Color, Icon: c.Icon})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, issues []calculator.Issue) {
	body := map[string]any{"error": message}
	if len(issues) > 0 {
		body["issues"] = issuesToDTO(issues)
	}
	writeJSON(w, status, body)
}
