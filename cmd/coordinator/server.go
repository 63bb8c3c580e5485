package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/dreamware/indexfleet/internal/cluster"
	"github.com/dreamware/indexfleet/internal/coordinator"
)

type server struct {
	coord   *coordinator.Coordinator
	monitor *coordinator.HealthMonitor
}

func newServer(coord *coordinator.Coordinator, monitor *coordinator.HealthMonitor) *server {
	return &server{coord: coord, monitor: monitor}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /job/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("POST /create_index", s.handleCreateIndex)
	mux.HandleFunc("GET /workers", s.handleWorkers)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	body, err := s.coord.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.coord.GetJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read body: " + err.Error()})
		return
	}
	if !json.Valid(raw) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body is not valid JSON"})
		return
	}

	resp, err := s.coord.CreateIndex(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, resp.StatusCode, resp.Body)
}

// workerStatus is one entry of GET /workers.
type workerStatus struct {
	Health *coordinator.WorkerHealth `json:"health,omitempty"`
	Worker string                    `json:"worker"`
	Status string                    `json:"status"`
}

func (s *server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	workers := s.coord.Workers()
	out := make([]workerStatus, 0, len(workers))
	for _, wk := range workers {
		st := workerStatus{Worker: wk.Addr(), Status: coordinator.HealthUnknown}
		if s.monitor != nil {
			if h := s.monitor.GetWorkerHealth(wk.Addr()); h != nil {
				st.Health = h
				st.Status = h.Status
			}
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, struct {
		Workers []workerStatus `json:"workers"`
	}{Workers: out})
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps coordinator errors onto HTTP statuses. A worker's own
// non-2xx answer is relayed unchanged.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound  *cluster.JobNotFoundError
		response  *cluster.WorkerResponseError
		transport *cluster.TransportError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &response):
		writeRaw(w, response.StatusCode, response.Body)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		w.WriteHeader(http.StatusServiceUnavailable)
	case isTimeout(err):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	case errors.As(err, &transport):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
