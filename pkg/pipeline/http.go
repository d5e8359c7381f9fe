package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clinical-ews/platform/pkg/audit"
	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/risk"
	"github.com/clinical-ews/platform/pkg/vitals"
	"github.com/gorilla/mux"
)

const actorHeader = "X-Actor-ID"

type HTTPHandler struct {
	coordinator  *Coordinator
	maxBody      int64
	historyLimit int
	auditLimit   int
	dashboardTTL time.Duration
}

func NewHTTPHandler(coordinator *Coordinator, maxBody int64, historyLimit, auditLimit int, dashboardTTL time.Duration) *HTTPHandler {
	return &HTTPHandler{
		coordinator:  coordinator,
		maxBody:      maxBody,
		historyLimit: historyLimit,
		auditLimit:   auditLimit,
		dashboardTTL: dashboardTTL,
	}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/ingest", h.handleIngest).Methods(http.MethodPost)
	router.HandleFunc("/predict/{anon_id}", h.handlePredict).Methods(http.MethodPost)
	router.HandleFunc("/patients", h.handlePatients).Methods(http.MethodGet)
	router.HandleFunc("/vitals/{anon_id}", h.handleVitals).Methods(http.MethodGet)
	router.HandleFunc("/predictions/{anon_id}", h.handlePredictions).Methods(http.MethodGet)
	router.HandleFunc("/audit", h.handleAudit).Methods(http.MethodGet)
	router.HandleFunc("/dashboard", h.handleDashboard).Methods(http.MethodGet)
}

func actor(r *http.Request) string {
	return r.Header.Get(actorHeader)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *HTTPHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var raw vitals.RawVitalsInput
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		logger.Log.WithError(err).Warn("invalid ingest payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.Ingest(r.Context(), actor(r), raw)
	if err != nil {
		logger.Log.WithError(err).Error("ingest failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch result.Status {
	case StatusRejected:
		writeJSON(w, http.StatusBadRequest, result)
	case StatusStoredButUnaudited:
		writeJSON(w, http.StatusMultiStatus, result)
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	anonID := mux.Vars(r)["anon_id"]

	result, err := h.coordinator.Predict(r.Context(), actor(r), anonID)
	if err != nil {
		switch {
		case errors.Is(err, vitals.ErrNotFound):
			http.Error(w, "patient not found", http.StatusNotFound)
		case errors.Is(err, risk.ErrModelUnavailable):
			http.Error(w, "risk model unavailable", http.StatusServiceUnavailable)
		default:
			logger.Log.WithError(err).Error("prediction failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if result.Status == StatusStoredButUnaudited {
		writeJSON(w, http.StatusMultiStatus, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handlePatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.coordinator.Patients(r.Context(), actor(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list patients")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *HTTPHandler) handleVitals(w http.ResponseWriter, r *http.Request) {
	anonID := mux.Vars(r)["anon_id"]

	records, err := h.coordinator.Vitals(r.Context(), actor(r), anonID, h.historyLimit)
	if err != nil {
		if errors.Is(err, vitals.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch vitals history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	anonID := mux.Vars(r)["anon_id"]

	predictions, err := h.coordinator.Predictions(r.Context(), actor(r), anonID, h.historyLimit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch prediction history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (h *HTTPHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Action: audit.ActionType(r.URL.Query().Get("action")),
		AnonID: r.URL.Query().Get("patient"),
		Limit:  h.auditLimit,
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = ts
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = ts
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit < h.auditLimit {
			filter.Limit = limit
		}
	}

	entries, err := h.coordinator.AuditEntries(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to query audit trail")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.coordinator.Dashboard(r.Context(), h.dashboardTTL)
	if err != nil {
		logger.Log.WithError(err).Error("failed to build dashboard stats")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
