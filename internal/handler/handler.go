package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finacct/balance-service/internal/balance"
	"github.com/finacct/balance-service/internal/feed"
	"github.com/finacct/balance-service/internal/models"
	syncpkg "github.com/finacct/balance-service/internal/sync"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Handler exposes the balance engine and sync orchestrator over HTTP.
type Handler struct {
	engine       *balance.Engine
	orchestrator *syncpkg.Orchestrator
	log          *logrus.Logger
}

// NewHandler initializes the HTTP handler.
func NewHandler(engine *balance.Engine, orchestrator *syncpkg.Orchestrator, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, orchestrator: orchestrator, log: log}
}

type calculateRequest struct {
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	ForceRecalculation  bool       `json:"force_recalculation"`
	IncludeSnapshots    bool       `json:"include_historical_snapshots"`
	ReconcileExternally *bool      `json:"reconcile_externally,omitempty"`
}

func (r calculateRequest) options() models.CalculationOptions {
	opts := models.CalculationOptions{
		StartDate:           r.StartDate,
		EndDate:             r.EndDate,
		ForceRecalculation:  r.ForceRecalculation,
		IncludeSnapshots:    r.IncludeSnapshots,
		ReconcileExternally: true,
	}
	if r.ReconcileExternally != nil {
		opts.ReconcileExternally = *r.ReconcileExternally
	}
	return opts
}

// CalculateBalance recalculates one account's balance.
func (h *Handler) CalculateBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID := mux.Vars(r)["accountID"]

	var req calculateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.engine.CalculateAccountBalance(r.Context(), userID, accountID, req.options())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CalculateAllBalances recalculates every linked account for the user.
func (h *Handler) CalculateAllBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}

	results, err := h.engine.CalculateAllUserBalances(r.Context(), userID, models.DefaultCalculationOptions())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

// GetBalanceHistory returns stored snapshots, filterable by date range and type.
func (h *Handler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID := mux.Vars(r)["accountID"]

	filter := models.HistoryFilter{SnapshotType: r.URL.Query().Get("type")}
	from, err := parseDateParam(r, "from")
	if err != nil {
		http.Error(w, "Invalid from date", http.StatusBadRequest)
		return
	}
	filter.From = from
	to, err := parseDateParam(r, "to")
	if err != nil {
		http.Error(w, "Invalid to date", http.StatusBadRequest)
		return
	}
	filter.To = to

	snapshots, err := h.engine.GetBalanceHistory(r.Context(), userID, accountID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

// GetBalanceForDateRange answers a date-range balance query with daily snapshots.
func (h *Handler) GetBalanceForDateRange(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID := mux.Vars(r)["accountID"]

	start, err := parseDateParam(r, "start")
	if err != nil || start == nil {
		http.Error(w, "Missing or invalid start date", http.StatusBadRequest)
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil || end == nil {
		http.Error(w, "Missing or invalid end date", http.StatusBadRequest)
		return
	}

	result, err := h.engine.GetBalanceForDateRange(r.Context(), userID, accountID, *start, *end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type beginningBalanceRequest struct {
	Value         string     `json:"value"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// SetBeginningBalance overwrites the replay anchor and forces a recalculation.
func (h *Handler) SetBeginningBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID := mux.Vars(r)["accountID"]

	var req beginningBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		http.Error(w, "Beginning balance must be numeric", http.StatusBadRequest)
		return
	}
	effectiveDate := time.Time{}
	if req.EffectiveDate != nil {
		effectiveDate = *req.EffectiveDate
	}

	result, err := h.engine.SetBeginningBalance(r.Context(), userID, accountID, value, effectiveDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SyncItem triggers an incremental sync for one linked item.
func (h *Handler) SyncItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "User ID not found in context", http.StatusUnauthorized)
		return
	}
	itemID := mux.Vars(r)["itemID"]

	result, err := h.orchestrator.SyncItem(r.Context(), userID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrLedgerNotFound),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, feed.ErrUpstreamUnavailable), errors.Is(err, feed.ErrPaginationMutation):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Errorf("Internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func userIDFromContext(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	return userID, ok && userID != ""
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
