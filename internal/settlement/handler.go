package settlement

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexsplit/nexsplit/internal/nex"
	"github.com/nexsplit/nexsplit/pkg/middleware"
	"github.com/nexsplit/nexsplit/pkg/response"
)

// Handler handles HTTP requests for settlement and balance operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for nex-scoped settlement endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{nexId}/settlements/available", h.GetAvailable)
	r.Post("/{nexId}/settlements/execute", h.Execute)
	r.Get("/{nexId}/settlements/summary", h.GetSummary)
	r.Get("/{nexId}/settlements/history", h.GetHistory)
	r.Get("/{nexId}/settlements/analytics", h.GetAnalytics)
	r.Get("/{nexId}/balances", h.GetBalanceSummary)

	return r
}

// GetAvailable handles GET /nex/{nexId}/settlements/available
// @Summary      List pending settlement candidates
// @Description  Compute the pending transfers for a nex in SIMPLIFIED (netted) or DETAILED (per-debt) mode
// @Tags         settlements
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Param        settlementType query string false "SIMPLIFIED or DETAILED" default(SIMPLIFIED)
// @Success      200 {object} response.APIResponse{data=AvailableSettlementsResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /nex/{nexId}/settlements/available [get]
func (h *Handler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")

	mode := Mode(r.URL.Query().Get("settlementType"))
	if mode == "" {
		mode = ModeSimplified
	}

	result, err := h.service.GetAvailable(r.Context(), nexID, mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Execute handles POST /nex/{nexId}/settlements/execute
// @Summary      Execute settlements
// @Description  Settle the selected transfers atomically, marking the underlying debts SETTLED
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Param        request body ExecuteRequest true "Settlement execution request"
// @Success      200 {object} response.APIResponse{data=ExecuteResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /nex/{nexId}/settlements/execute [post]
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.Execute(r.Context(), nexID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// GetSummary handles GET /nex/{nexId}/settlements/summary
// @Summary      Get settlement summary
// @Tags         settlements
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Success      200 {object} response.APIResponse{data=SummaryResponse}
// @Router       /nex/{nexId}/settlements/summary [get]
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")
	userID, _ := middleware.GetUserID(r.Context())

	result, err := h.service.GetSummary(r.Context(), nexID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// GetHistory handles GET /nex/{nexId}/settlements/history
// @Summary      Get settlement history
// @Description  Page through settled debts, most recently settled first
// @Tags         settlements
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Param        page query int false "Page number (zero-based)"
// @Param        size query int false "Page size" default(20)
// @Param        sortDirection query string false "ASC or DESC" default(DESC)
// @Success      200 {object} response.APIResponse{data=[]HistoryItemResponse}
// @Router       /nex/{nexId}/settlements/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	sortAsc := r.URL.Query().Get("sortDirection") == "ASC"

	items, total, err := h.service.GetHistory(r.Context(), nexID, page, size, sortAsc)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if size < 1 || size > 100 {
		size = 20
	}
	response.JSONWithMeta(w, http.StatusOK, items, response.NewMeta(page, size, total))
}

// GetAnalytics handles GET /nex/{nexId}/settlements/analytics
// @Summary      Get settlement analytics
// @Tags         settlements
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Success      200 {object} response.APIResponse{data=AnalyticsResponse}
// @Router       /nex/{nexId}/settlements/analytics [get]
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")
	userID, _ := middleware.GetUserID(r.Context())

	result, err := h.service.GetAnalytics(r.Context(), nexID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// GetBalanceSummary handles GET /nex/{nexId}/balances
// @Summary      Get balance summary
// @Description  Per-member totalPaid, totalOwed and signed netBalance, plus the nex expense total
// @Tags         balances
// @Produce      json
// @Param        nexId path string true "Nex ID"
// @Success      200 {object} response.APIResponse{data=BalanceSummaryResponse}
// @Router       /nex/{nexId}/balances [get]
func (h *Handler) GetBalanceSummary(w http.ResponseWriter, r *http.Request) {
	nexID := chi.URLParam(r, "nexId")

	result, err := h.service.GetBalanceSummary(r.Context(), nexID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nex.ErrNexNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrUnknownSettlement):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrInvalidMode), errors.Is(err, ErrNoSelection), errors.Is(err, ErrInvalidDate):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrUnbalancedLedger):
		// Money being created or destroyed: fail loudly, never mask it.
		response.InternalError(w, err.Error())
	default:
		response.InternalError(w, "Failed to process settlement request")
	}
}
