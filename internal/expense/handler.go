package expense

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense/split"
	"github.com/nexsplit/nexsplit/internal/nex"
	"github.com/nexsplit/nexsplit/pkg/response"
)

// Handler handles HTTP requests for expense operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new expense handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for expense endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/summary", h.GetSummary)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

// Create handles POST /expenses
// @Summary      Create a new expense
// @Description  Create an expense with automatic split calculation using EQUALLY, AMOUNT, or PERCENTAGE strategy; debts are generated in the same transaction
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        request body CreateExpenseRequest true "Expense creation request"
// @Success      201 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /expenses [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

// GetByID handles GET /expenses/{id}
// @Summary      Get expense by ID
// @Description  Get an expense with its resolved splits and generated debts
// @Tags         expenses
// @Produce      json
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /expenses/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Update handles PUT /expenses/{id}
// @Summary      Update an expense
// @Description  Replace an expense wholesale; splits are recomputed and debts regenerated. Conflicts when any existing debt is settled.
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        id path string true "Expense ID"
// @Param        request body UpdateExpenseRequest true "Expense update request"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Delete handles DELETE /expenses/{id}
// @Summary      Delete an expense
// @Description  Retract the expense's debts and remove it. Conflicts when any debt is settled.
// @Tags         expenses
// @Produce      json
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}

// GetSummary handles GET /expenses/summary
// @Summary      Get expense summary for a nex
// @Tags         expenses
// @Produce      json
// @Param        nexId query string true "Nex ID"
// @Success      200 {object} response.APIResponse{data=SummaryResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /expenses/summary [get]
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	nexID := r.URL.Query().Get("nexId")
	if nexID == "" {
		response.BadRequest(w, "nexId query parameter is required")
		return
	}

	result, err := h.service.GetSummary(r.Context(), nexID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// ListByNex handles GET /nex/{nexId}/expenses
// @Summary      List expenses in a nex
// @Description  Page through a nex's expenses, newest first, optionally filtered by category or payer
// @Tags         expenses
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Param        page query int false "Page number (zero-based)"
// @Param        size query int false "Page size" default(20)
// @Param        categoryId query string false "Filter by category"
// @Param        payerId query string false "Filter by payer"
// @Param        startDate query string false "Earliest expense date (RFC3339 or YYYY-MM-DD)"
// @Param        endDate query string false "Latest expense date (RFC3339 or YYYY-MM-DD)"
// @Success      200 {object} response.APIResponse{data=[]ExpenseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /nex/{nexId}/expenses [get]
func (h *Handler) ListByNex(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	filter := ListFilter{
		CategoryID: r.URL.Query().Get("categoryId"),
		PayerID:    r.URL.Query().Get("payerId"),
	}
	var err error
	if filter.StartDate, err = parseDateParam(r.URL.Query().Get("startDate")); err != nil {
		h.writeError(w, err)
		return
	}
	if filter.EndDate, err = parseDateParam(r.URL.Query().Get("endDate")); err != nil {
		h.writeError(w, err)
		return
	}

	items, total, err := h.service.ListByNex(r.Context(), nexID, filter, page, size)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if size < 1 || size > 100 {
		size = 20
	}
	response.JSONWithMeta(w, http.StatusOK, items, response.NewMeta(page, size, total))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExpenseNotFound), errors.Is(err, nex.ErrNexNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, debt.ErrSettledDebts):
		response.Conflict(w, err.Error())
	case errors.Is(err, split.ErrInvalidInput), errors.Is(err, split.ErrSplitMismatch):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, "Failed to process expense request")
	}
}
