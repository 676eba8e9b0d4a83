package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pointledger/pointledger/internal/models"
	"github.com/pointledger/pointledger/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pointledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	ledger *service.Ledger
	log    zerolog.Logger
}

func NewHandler(l *service.Ledger, log zerolog.Logger) *Handler {
	return &Handler{ledger: l, log: log.With().Str("component", "api").Logger()}
}

// NewRouter wires all routes. Metrics and health live at the root; the
// ledger operations under /api/v1.
func NewRouter(h *Handler, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(log))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/mint", h.Mint).Methods("POST")
	apiV1.HandleFunc("/accounts/{address}/points", h.GetPoints).Methods("GET")
	apiV1.HandleFunc("/transfer", h.Transfer).Methods("POST")
	apiV1.HandleFunc("/payments/request", h.CreatePaymentRequest).Methods("POST")
	apiV1.HandleFunc("/payments/{id}", h.GetPaymentRequest).Methods("GET")
	apiV1.HandleFunc("/payments/{id}/accept", h.AcceptPayment).Methods("POST")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/mint"))
	defer timer.ObserveDuration()

	var req models.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/mint")
		return
	}

	account, err := h.ledger.Mint(r.Context(), req.AdminSecret, req.Address, req.Amount)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/mint")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "POST", "/mint")
}

func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/accounts/{address}/points"))
	defer timer.ObserveDuration()

	points, err := h.ledger.GetBalance(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{address}/points")
		return
	}
	h.respondJSON(w, http.StatusOK, models.BalanceResponse{Points: points}, "GET", "/accounts/{address}/points")
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfer"))
	defer timer.ObserveDuration()

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/transfer")
		return
	}

	if err := h.ledger.Transfer(r.Context(), req.Sender, req.Recipient, req.Amount, req.Signature); err != nil {
		h.respondDomainError(w, err, "POST", "/transfer")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "transfer completed"}, "POST", "/transfer")
}

func (h *Handler) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payments/request"))
	defer timer.ObserveDuration()

	var req models.PaymentRequestCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/payments/request")
		return
	}

	created, err := h.ledger.RequestPayment(r.Context(), req.CreditorKey, req.DebtorKey, req.Amount, req.Signature)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/payments/request")
		return
	}
	h.respondJSON(w, http.StatusCreated, created, "POST", "/payments/request")
}

func (h *Handler) GetPaymentRequest(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/payments/{id}"))
	defer timer.ObserveDuration()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "request id must be an integer", "GET", "/payments/{id}")
		return
	}

	req, err := h.ledger.GetPaymentRequest(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/payments/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, req, "GET", "/payments/{id}")
}

func (h *Handler) AcceptPayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payments/{id}/accept"))
	defer timer.ObserveDuration()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "request id must be an integer", "POST", "/payments/{id}/accept")
		return
	}

	var req models.PaymentAccept
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/payments/{id}/accept")
		return
	}

	if err := h.ledger.AcceptPayment(r.Context(), id, req.Address, req.Signature); err != nil {
		h.respondDomainError(w, err, "POST", "/payments/{id}/accept")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "payment request accepted"}, "POST", "/payments/{id}/accept")
}

// respondDomainError maps domain errors to status codes. Unrecognized
// errors are logged with detail but surface as a generic internal error.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.respondError(w, http.StatusBadRequest, validationErr.Error(), method, endpoint)
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrInvalidSignature):
		h.respondError(w, http.StatusForbidden, "invalid admin secret or signature", method, endpoint)
	case errors.Is(err, models.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "account not found", method, endpoint)
	case errors.Is(err, models.ErrRequestNotFound):
		h.respondError(w, http.StatusNotFound, "payment request not found", method, endpoint)
	case errors.Is(err, models.ErrRequestConflict):
		h.respondError(w, http.StatusConflict, "payment request already settled", method, endpoint)
	case errors.Is(err, models.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "insufficient funds", method, endpoint)
	default:
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("internal error")
		h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message string, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": message}, method, endpoint)
}
