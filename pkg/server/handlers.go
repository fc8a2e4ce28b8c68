package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/trigger"
	"mercator-hq/ascent/pkg/upgrade"
)

const maxBodyBytes = 1 << 20

// Manual is the operator check-then-confirm flow.
type Manual interface {
	Check(ctx context.Context, op upgrade.Operator, distributorID int64) (*upgrade.CheckResult, error)
	Confirm(ctx context.Context, op upgrade.Operator, ticketID string) (*tier.HistoryRecord, error)
}

// Engine is the part of upgrade.Service the API reads from.
type Engine interface {
	CheckEligibility(ctx context.Context, distributorID int64) (*upgrade.Resolution, error)
	Reclassify(ctx context.Context, historyID, operator string) (*tier.HistoryRecord, error)
}

// ReclassifyAuthorizer decides who may annotate history.
type ReclassifyAuthorizer interface {
	CanReclassify(op upgrade.Operator) (bool, error)
}

// LedgerListener receives ledger status changes.
type LedgerListener interface {
	OnWithdrawal(ctx context.Context, ev trigger.LedgerEvent) bool
	OnCommission(ctx context.Context, ev trigger.LedgerEvent) bool
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	var body errorBody
	body.Error.Code = errCode
	body.Error.Message = msg
	writeJSON(w, code, body)
}

// writeDomainError maps engine errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upgrade.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, upgrade.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, "ticket_not_found", err.Error())
	case errors.Is(err, tier.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, upgrade.ErrNoLongerEligible):
		writeError(w, http.StatusConflict, "no_longer_eligible", err.Error())
	case errors.Is(err, upgrade.ErrNothingToConfirm):
		writeError(w, http.StatusConflict, "nothing_to_confirm", err.Error())
	case tier.IsConflict(err):
		writeError(w, http.StatusConflict, "concurrency_conflict", "the distributor changed concurrently; retry the check")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func operatorFrom(r *http.Request) upgrade.Operator {
	op := upgrade.Operator{ID: strings.TrimSpace(r.Header.Get(OperatorIDHeader))}
	for _, role := range strings.Split(r.Header.Get(OperatorRolesHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			op.Roles = append(op.Roles, role)
		}
	}
	return op
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "distributor id must be a positive integer")
		return 0, false
	}
	return id, true
}

type checkRequest struct {
	DistributorID int64 `json:"distributor_id"`
}

func (s *Server) handleManualCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DistributorID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "distributor_id must be a positive integer")
		return
	}
	result, err := s.deps.Manual.Check(r.Context(), operatorFrom(r), req.DistributorID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmRequest struct {
	TicketID string `json:"ticket_id"`
}

func (s *Server) handleManualConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TicketID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_ticket", "ticket_id is required")
		return
	}
	record, err := s.deps.Manual.Confirm(r.Context(), operatorFrom(r), req.TicketID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type eligibilityResponse struct {
	*upgrade.Resolution
	Summary string `json:"summary"`
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Engine.CheckEligibility(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Resolution: res, Summary: upgrade.FormatSummary(res)})
}

func (s *Server) handleDistributorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	records, err := s.deps.History.HistoryByDistributor(r.Context(), id, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	records, err := s.deps.History.QueryHistory(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func historyQuery(r *http.Request) (tier.HistoryQuery, error) {
	var q tier.HistoryQuery
	v := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.StartTime}, {"end", &q.EndTime}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}
	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return q, errors.New("end must not be before start")
	}

	var err error
	if raw := v.Get("distributor_id"); raw != "" {
		if q.DistributorID, err = strconv.ParseInt(raw, 10, 64); err != nil || q.DistributorID <= 0 {
			return q, errors.New("distributor_id must be a positive integer")
		}
	}
	switch kind := tier.TriggerKind(v.Get("trigger_kind")); kind {
	case "", tier.TriggerAuto, tier.TriggerManual:
		q.TriggerKind = kind
	default:
		return q, fmt.Errorf("trigger_kind must be %s or %s", tier.TriggerAuto, tier.TriggerManual)
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(r, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleReclassify(w http.ResponseWriter, r *http.Request) {
	op := operatorFrom(r)
	if op.ID == "" {
		writeError(w, http.StatusForbidden, "forbidden", "operator identity is required")
		return
	}
	if s.deps.Authz != nil {
		ok, err := s.deps.Authz.CanReclassify(op)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "operator is not allowed to reclassify history")
			return
		}
	}
	record, err := s.deps.Engine.Reclassify(r.Context(), r.PathValue("id"), op.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleLedgerEvent(on func(LedgerListener, context.Context, trigger.LedgerEvent) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev trigger.LedgerEvent
		if !decodeBody(w, r, &ev) {
			return
		}
		if ev.Status == "" {
			writeError(w, http.StatusBadRequest, "invalid_event", "status is required")
			return
		}
		queued := on(s.deps.Listener, r.Context(), ev)
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
	}
}
