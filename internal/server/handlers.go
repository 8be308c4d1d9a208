package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// discoverRequest is the JSON request body for running a discovery.
type discoverRequest struct {
	// Bundle holds the identifiers to query for; at least one field must
	// be populated.
	Bundle domain.IdentifierBundle `json:"bundle"`
	// Dataset describes the originating dataset for relevance scoring.
	Dataset domain.DatasetContext `json:"dataset"`
}

// invalidateRequest is the JSON request body for forcing a cache refresh.
type invalidateRequest struct {
	Bundle domain.IdentifierBundle `json:"bundle"`
}

// acquireRequest is the JSON request body for acquiring a record's PDF.
type acquireRequest struct {
	Record domain.CanonicalRecord `json:"record"`
}

// runDiscovery handles POST /api/v1/discoveries.
func (s *Server) runDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Bundle.IsEmpty() {
		writeError(w, http.StatusBadRequest, "bundle must contain at least one identifier or lookup field")
		return
	}

	result, err := s.discovery.Discover(r.Context(), req.Bundle, req.Dataset)
	if err != nil {
		s.writeDomainError(w, err, "discovery failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// invalidateDiscovery handles POST /api/v1/discoveries/invalidate.
func (s *Server) invalidateDiscovery(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Bundle.IsEmpty() {
		writeError(w, http.StatusBadRequest, "bundle must contain at least one identifier or lookup field")
		return
	}

	if err := s.discovery.Invalidate(r.Context(), req.Bundle); err != nil {
		s.writeDomainError(w, err, "invalidation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": req.Bundle.Key(), "status": "invalidated"})
}

// runAcquisition handles POST /api/v1/acquisitions.
func (s *Server) runAcquisition(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Record.ID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "record.id is required")
		return
	}
	if len(req.Record.Locations) == 0 {
		writeError(w, http.StatusBadRequest, "record has no download locations")
		return
	}

	result, err := s.acquisition.Acquire(r.Context(), req.Record)
	if err != nil {
		s.writeDomainError(w, err, "acquisition failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeBody reads and unmarshals a size-capped JSON request body. It writes
// the error response itself and returns false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// writeDomainError maps pipeline errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)

	switch {
	case errors.Is(err, domain.ErrEmptyBundle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, msg)
	}
}
