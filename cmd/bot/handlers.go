package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/incidents"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/monitoring"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type monitor interface {
	Start(topics, keywords []string) (string, error)
	Stop(id string) bool
	Status() models.MonitoringStatus
}

type incidentStore interface {
	Get(id string) (models.Incident, bool)
	Query(q incidents.Query) []models.Incident
	UpdateStatus(id string, status models.Status, note string) bool
	Stats() models.AggregateStats
}

type digester interface {
	RunDigest() error
}

// api is the thin admin surface over the monitor and the incident store
type api struct {
	monitor   monitor
	incidents incidentStore
	digest    digester
}

type startJobRequest struct {
	Topics   []string `json:"topics"`
	Keywords []string `json:"keywords"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func newRouter(a *api) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/jobs", a.startJob).Methods("POST")
	router.HandleFunc("/jobs/{id}", a.stopJob).Methods("DELETE")
	router.HandleFunc("/status", a.status).Methods("GET")

	router.HandleFunc("/incidents", a.queryIncidents).Methods("GET")
	router.HandleFunc("/incidents/stats", a.incidentStats).Methods("GET")
	router.HandleFunc("/incidents/{id}", a.getIncident).Methods("GET")
	router.HandleFunc("/incidents/{id}/status", a.updateIncidentStatus).Methods("PUT")

	// Manual digest trigger (for testing)
	router.HandleFunc("/trigger", a.trigger).Methods("POST")

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *api) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := a.monitor.Start(req.Topics, req.Keywords)
	if errors.Is(err, models.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, monitoring.ErrShuttingDown) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

func (a *api) stopJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !a.monitor.Stop(id) {
		writeError(w, http.StatusNotFound, "job "+id+": "+models.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "stopped"})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.Status())
}

func (a *api) queryIncidents(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	var q incidents.Query

	if v := params.Get("status"); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Status = status
	}
	if v := params.Get("severity"); v != "" {
		severity, err := models.ParseSeverity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Severity = severity
	}
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}
	q.Platform = params.Get("platform")

	writeJSON(w, http.StatusOK, a.incidents.Query(q))
}

func (a *api) incidentStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.incidents.Stats())
}

func (a *api) getIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	incident, ok := a.incidents.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "incident "+id+": "+models.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (a *api) updateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !a.incidents.UpdateStatus(id, status, req.Note) {
		writeError(w, http.StatusNotFound, "incident "+id+": "+models.ErrNotFound.Error())
		return
	}

	incident, _ := a.incidents.Get(id)
	writeJSON(w, http.StatusOK, incident)
}

func (a *api) trigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := a.digest.RunDigest(); err != nil {
			logrus.Errorf("Manual digest trigger failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Digest triggered successfully"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
