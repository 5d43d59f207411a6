package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	utils.WriteJSONResponse(w, status, errorResponse{Status: "error", Message: message})
}

// writeServiceError maps an application error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrBadRequest),
		errors.Is(err, apperrors.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, scope.ErrScopeIDNotFound):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.FromContext(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// readBody reads and size-limits the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeJSON unmarshals a request body into dst, rejecting malformed JSON.
func decodeJSON(w http.ResponseWriter, body []byte, dst interface{}) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// ruleIDParam parses the {ruleId} route param.
func ruleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ruleId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return 0, false
	}
	return id, true
}

// handleIngest is POST /webhook/{webhookId}: the inbound lead entry point.
// The webhook ID is the source scope.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookId")
	if webhookID == "" {
		writeError(w, http.StatusBadRequest, "missing webhook ID")
		return
	}
	ctx := scope.WithScopeID(r.Context(), webhookID)

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var sub model.LeadSubmission
	if !decodeJSON(w, body, &sub) {
		return
	}

	resp, err := s.ingest.Ingest(ctx, sub, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, resp)
}

// --- Routing rules --- //

func (s *Server) handleListRoutingRules(w http.ResponseWriter, r *http.Request) {
	out, err := s.rules.ListRoutingRules(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, out)
}

func (s *Server) handleCreateRoutingRule(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.RoutingRulePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	rule, err := s.rules.CreateRoutingRule(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRoutingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := s.rules.GetRoutingRule(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRoutingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.RoutingRulePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	rule, err := s.rules.UpdateRoutingRule(r.Context(), id, payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRoutingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	if err := s.rules.DeleteRoutingRule(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Forwarding rules --- //

func (s *Server) handleListForwardingRules(w http.ResponseWriter, r *http.Request) {
	out, err := s.rules.ListForwardingRules(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, out)
}

func (s *Server) handleCreateForwardingRule(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.ForwardingRulePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	rule, err := s.rules.CreateForwardingRule(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, rule)
}

func (s *Server) handleCreateForwardingRuleBulk(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.BulkForwardingRulePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	rule, err := s.rules.CreateForwardingRuleBulk(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, rule)
}

func (s *Server) handleGetForwardingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := s.rules.GetForwardingRule(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateForwardingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.ForwardingRulePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	rule, err := s.rules.UpdateForwardingRule(r.Context(), id, payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteForwardingRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	if err := s.rules.DeleteForwardingRule(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Toggle, log, stats --- //

func (s *Server) handleForwardingToggle(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload model.TogglePayload
	if !decodeJSON(w, body, &payload) {
		return
	}
	if payload.ForwardingEnabled == nil {
		writeError(w, http.StatusBadRequest, "forwarding_enabled is required")
		return
	}
	settings, err := s.rules.SetForwardingEnabled(r.Context(), *payload.ForwardingEnabled)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, settings)
}

func (s *Server) handleForwardingLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := s.logs.List(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, page)
}

func (s *Server) handleForwardingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.logs.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, stats)
}
