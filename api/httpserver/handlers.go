package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/services"
)

// ProverStatus is the part of a SubProver the status endpoints read.
type ProverStatus interface {
	Stats() network.Stats
	Latest() *services.SessionResult
}

// ProofSource returns the latest archived proof.
type ProofSource interface {
	LatestProof(ctx context.Context) (*services.ProofRecord, error)
}

// StatusHandler exposes the traffic counters and the latest proof of a party.
type StatusHandler struct {
	prover ProverStatus
	proofs ProofSource
}

// NewStatusHandler creates a StatusHandler. A nil proofs falls back to
// prover when it can serve proofs itself.
func NewStatusHandler(prover ProverStatus, proofs ProofSource) *StatusHandler {
	if proofs == nil {
		proofs, _ = prover.(ProofSource)
	}
	return &StatusHandler{prover: prover, proofs: proofs}
}

func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.stats)
	r.Get("/proofs/latest", h.latestProof)
}

// StatsResponse is returned by /stats.
type StatsResponse struct {
	Stats          network.Stats `json:"stats"`
	HasSession     bool          `json:"has_session"`
	LastDurationMs int64         `json:"last_duration_ms,omitempty"`
}

func (h *StatusHandler) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: h.prover.Stats()}
	if latest := h.prover.Latest(); latest != nil {
		resp.HasSession = true
		resp.LastDurationMs = latest.Duration.Milliseconds()
	}
	writeJSON(w, http.StatusOK, &resp)
}

func (h *StatusHandler) latestProof(w http.ResponseWriter, r *http.Request) {
	if h.proofs == nil {
		http.Error(w, "no proof store", http.StatusNotFound)
		return
	}
	rec, err := h.proofs.LatestProof(r.Context())
	if errors.Is(err, services.ErrNoProof) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
