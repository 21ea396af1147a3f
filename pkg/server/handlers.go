package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"veridian-hq/attune/pkg/engine"
	"veridian-hq/attune/pkg/policy"
	"veridian-hq/attune/pkg/policy/storage"
	"veridian-hq/attune/pkg/signal"
)

// signalRequest is the wire shape of a submitted observation.
type signalRequest struct {
	Service     string  `json:"service"`
	Environment string  `json:"environment"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	// Timestamp is RFC 3339; defaults to receipt time when omitted.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// handleSubmitSignal records one observation. The response is an ack
// only; submission never returns a decision.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if req.Service == "" || req.Environment == "" || req.Metric == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "service, environment and metric are required")
		return
	}
	if s.catalog != nil {
		if _, ok := s.catalog[req.Metric]; !ok {
			writeError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("unknown metric %q", req.Metric))
			return
		}
	}

	obs := signal.Observation{
		Service:     req.Service,
		Environment: req.Environment,
		Metric:      req.Metric,
		Value:       req.Value,
	}
	if req.Timestamp != nil {
		obs.Timestamp = *req.Timestamp
	}
	s.store.Record(obs)

	if s.metrics != nil {
		s.metrics.SignalIngested(req.Metric)
		s.metrics.SetActiveWindows(s.store.Len())
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleEffectivePolicy runs a pull-triggered decision for the key in
// the path.
func (s *Server) handleEffectivePolicy(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	environment := r.PathValue("environment")
	if service == "" || environment == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "service and environment are required")
		return
	}

	decision, err := s.eng.Decide(r.Context(), service, environment, time.Time{})
	if err != nil {
		var unavailable *engine.UnavailableError
		if errors.As(err, &unavailable) {
			writeError(w, http.StatusServiceUnavailable, "decision_unavailable", "decision unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// policyListResponse wraps the policy collection with its version.
type policyListResponse struct {
	Policies []*policy.Policy `json:"policies"`
	Version  string           `json:"version"`
	Count    int              `json:"count"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policyListResponse{
		Policies: s.registry.List(),
		Version:  s.registry.Version(),
		Count:    s.registry.Count(),
	})
}

func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	s.upsertPolicy(w, r, "")
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	s.upsertPolicy(w, r, r.PathValue("id"))
}

// upsertPolicy validates the payload against the policy schema, decodes
// it, registers it, and persists it when a backend is configured.
func (s *Server) upsertPolicy(w http.ResponseWriter, r *http.Request, pathID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "failed to read request body")
		return
	}

	if err := s.schema.validate(body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	var p policy.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid policy document")
		return
	}
	if pathID != "" && p.ID != pathID {
		writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("policy id %q does not match path id %q", p.ID, pathID))
		return
	}

	_, existed := s.registry.Get(p.ID)
	if err := s.registry.Upsert(&p); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if s.backend != nil {
		if err := s.backend.SavePolicy(r.Context(), &p); err != nil {
			s.logger.Error("policy persisted to registry but not storage", "policy_id", p.ID, "error", err)
			s.writeDomainError(w, err)
			return
		}
	}
	if s.metrics != nil {
		s.metrics.SetPoliciesRegistered(s.registry.Count())
	}

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, &p)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("policy %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Delete(id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if s.backend != nil {
		if err := s.backend.DeletePolicy(r.Context(), id); err != nil {
			s.logger.Error("policy removed from registry but not storage", "policy_id", id, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.SetPoliciesRegistered(s.registry.Count())
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDecisionChanges returns recent audit records, newest first.
func (s *Server) handleDecisionChanges(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusNotFound, "not_found", "decision auditing is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	changes, err := s.recorder.Recent(r.Context(),
		r.URL.Query().Get("service"), r.URL.Query().Get("environment"), limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "audit storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, s.cfg.Server.MaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeDomainError maps domain error types to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var validation *policy.ValidationError
	var notFound *policy.NotFoundError
	var unavailable *storage.UnavailableError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", notFound.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", unavailable.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	var body errorResponse
	body.Error.Code = errCode
	body.Error.Message = message
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
