package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/models"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	engine *Engine
	logger *zap.Logger
}

func NewHandler(e *Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: e, logger: logger}
}

// Register mounts the engine's routes on r, which should already carry the
// API prefix.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/accounts", h.CreateAccounts).Methods(http.MethodPost)
	r.HandleFunc("/accounts/balances", h.GetBalances).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{code}/close", h.CloseAccount).Methods(http.MethodPost)
	r.HandleFunc("/journal-entries", h.entry(KindJournalEntry, "/journal-entries")).Methods(http.MethodPost)
	r.HandleFunc("/transfers/compound", h.entry(KindCompoundTransfer, "/transfers/compound")).Methods(http.MethodPost)
	r.HandleFunc("/pending-journal-entries", h.entry(KindPendingJournalEntry, "/pending-journal-entries")).Methods(http.MethodPost)
	r.HandleFunc("/pending-compound-transfers", h.entry(KindPendingCompoundTransfer, "/pending-compound-transfers")).Methods(http.MethodPost)
	r.HandleFunc("/pending-journal-entries/{id}/{action:commit|void}", h.resolve(KindPendingJournalEntry, "/pending-journal-entries/{id}/{action}")).Methods(http.MethodPost)
	r.HandleFunc("/pending-compound-transfers/{id}/{action:commit|void}", h.resolve(KindPendingCompoundTransfer, "/pending-compound-transfers/{id}/{action}")).Methods(http.MethodPost)
	r.HandleFunc("/admin/limiter-accounts/refill", h.Refill).Methods(http.MethodPost)
	r.HandleFunc("/admin/journal-entries/{id}/correct", h.Correct).Methods(http.MethodPost)
}

// Router builds a standalone router serving the engine under prefix.
func (h *Handler) Router(prefix string) *mux.Router {
	r := mux.NewRouter()
	h.Register(r.PathPrefix(prefix).Subrouter())
	return r
}

func (h *Handler) CreateAccounts(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req models.CreateAccountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	created, err := h.engine.CreateAccounts(req)
	if err != nil {
		h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"created": created}, "POST", endpoint)
}

func (h *Handler) entry(kind Kind, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
		defer timer.ObserveDuration()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "Stream read error", "POST", endpoint)
			return
		}
		hash := sha256.Sum256(append([]byte(endpoint+"\n"), body...))
		reqHash := hex.EncodeToString(hash[:])

		var req models.EntryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
			return
		}

		out, err := h.engine.SubmitEntry(kind, req, reqHash)
		if err != nil {
			h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
			return
		}
		h.respondRaw(w, out.Status, out.Body, "POST", endpoint)
	}
}

func (h *Handler) resolve(kind Kind, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
		defer timer.ObserveDuration()

		vars := mux.Vars(r)
		var req models.TenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
			return
		}
		state, err := h.engine.Resolve(req.TenantID, kind, vars["id"], vars["action"] == "commit")
		if err != nil {
			h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
			return
		}
		h.respondJSON(w, http.StatusOK, models.JournalResponse{JournalID: models.JournalID(vars["id"]), Status: string(state)}, "POST", endpoint)
	}
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/balances"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	q := r.URL.Query()
	records, err := h.engine.Balances(q.Get("tenant_id"), q["account_codes"])
	if err != nil {
		h.respondError(w, StatusOf(err), err.Error(), "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, records, "GET", endpoint)
}

func (h *Handler) Refill(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/admin/limiter-accounts/refill"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req models.RefillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	if err := h.engine.Refill(req); err != nil {
		h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
		return
	}
	httpReqTotal.WithLabelValues("POST", endpoint, "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/admin/journal-entries/{id}/correct"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	reversalID, err := h.engine.Correct(r.URL.Query().Get("tenant_id"), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.CorrectionResponse{ReversalJournalID: models.JournalID(reversalID)}, "POST", endpoint)
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{code}/close"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	code := mux.Vars(r)["code"]
	var req models.CloseAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	if err := h.engine.CloseAccount(req.TenantID, req, code); err != nil {
		h.respondError(w, StatusOf(err), err.Error(), "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"account_code": code, "status": "closed"}, "POST", endpoint)
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondRaw(w http.ResponseWriter, code int, body []byte, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	if code >= http.StatusInternalServerError {
		h.logger.Error("sandbox request failed", zap.String("endpoint", endpoint), zap.String("error", msg))
	}
	h.respondJSON(w, code, models.ErrorResponse{Error: msg}, method, endpoint)
}
