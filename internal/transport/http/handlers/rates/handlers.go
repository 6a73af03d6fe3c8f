package rateshandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/notifications"
	"pms/internal/domain/rates"
	"pms/internal/platform/metrics"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Service *rates.Service
	Notify  *notifications.Service
	Audit   *audit.Service
	Metrics *metrics.Collector
}

func NewHandler(service *rates.Service, notify *notifications.Service, auditSvc *audit.Service, collector *metrics.Collector) *Handler {
	return &Handler{Service: service, Notify: notify, Audit: auditSvc, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rate-overrides", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreateOverride)
		r.Patch("/{overrideID}", h.handleUpdateOverride)
		r.Post("/{overrideID}/recommend", h.decisionHandler(rates.SubjectOverride, rates.ActionRecommend))
		r.Post("/{overrideID}/finalize", h.decisionHandler(rates.SubjectOverride, rates.ActionFinalize))
	})
	r.Route("/rate-requests", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreateRequest)
		r.Post("/{requestID}/recommend", h.decisionHandler(rates.SubjectChangeRequest, rates.ActionRecommend))
		r.Post("/{requestID}/finalize", h.decisionHandler(rates.SubjectChangeRequest, rates.ActionFinalize))
	})
	r.With(middleware.RequireAuth).Get("/approvals/pending", h.handleListPending)
	r.Route("/lease-units/{leaseUnitID}", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/effective-rate", h.handleEffectiveRate)
		r.Get("/composition", h.handleComposition)
		r.Get("/history", h.handleHistory)
	})
}

// fail maps domain errors onto HTTP responses. Validation, capability, state,
// and overlap failures each have a distinct status so clients can react.
func (h *Handler) fail(w http.ResponseWriter, reqID string, err error, code, message string) {
	var validationErr *rates.ValidationError
	var unauthorizedErr *rates.UnauthorizedError
	var stateErr *rates.InvalidStateError
	var conflictErr *rates.ConflictError

	switch {
	case errors.As(err, &validationErr):
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", validationErr.Error(),
			map[string]any{"field": validationErr.Field, "reason": validationErr.Reason}, reqID)
	case errors.As(err, &unauthorizedErr):
		api.Fail(w, http.StatusForbidden, "capability_required", unauthorizedErr.Error(), reqID)
	case errors.As(err, &stateErr):
		api.FailWithDetails(w, http.StatusConflict, "invalid_state", stateErr.Error(),
			map[string]any{"stage": stateErr.Stage}, reqID)
	case errors.As(err, &conflictErr):
		if h.Metrics != nil {
			h.Metrics.RecordConflict()
		}
		api.FailWithDetails(w, http.StatusConflict, "override_conflict", conflictErr.Error(),
			map[string]any{"conflictsWith": conflictErr.ConflictsWith}, reqID)
	case errors.Is(err, rates.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "record not found", reqID)
	default:
		slog.Error("rates handler failure", "code", code, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}

type overrideRequest struct {
	LeaseUnitID   string   `json:"leaseUnitId"`
	OverrideType  string   `json:"overrideType"`
	FixedRate     *float64 `json:"fixedRate"`
	PercentageCap *float64 `json:"percentageCap"`
	EffectiveFrom string   `json:"effectiveFrom"`
	EffectiveTo   string   `json:"effectiveTo"`
	Reason        string   `json:"reason"`
}

func (p overrideRequest) toInput(requestedBy string) (rates.NewOverride, error) {
	from, err := shared.ParseDate(p.EffectiveFrom)
	if err != nil {
		return rates.NewOverride{}, &rates.ValidationError{Field: "effectiveFrom", Reason: "must be a valid date"}
	}
	input := rates.NewOverride{
		LeaseUnitID:   p.LeaseUnitID,
		Type:          rates.OverrideType(p.OverrideType),
		FixedRate:     p.FixedRate,
		PercentageCap: p.PercentageCap,
		EffectiveFrom: from,
		Reason:        p.Reason,
		RequestedBy:   requestedBy,
	}
	if p.EffectiveTo != "" {
		to, err := shared.ParseDate(p.EffectiveTo)
		if err != nil {
			return rates.NewOverride{}, &rates.ValidationError{Field: "effectiveTo", Reason: "must be a valid date"}
		}
		input.EffectiveTo = &to
	}
	return input, nil
}

func (h *Handler) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	input, err := payload.toInput(actor.UserID)
	if err != nil {
		h.fail(w, reqID, err, "override_create_failed", "failed to create override")
		return
	}

	override, err := h.Service.CreateOverride(r.Context(), input)
	if err != nil {
		h.fail(w, reqID, err, "override_create_failed", "failed to create override")
		return
	}

	h.recordAudit(r, actor.UserID, audit.ActionOverrideCreated, "rate_override", override.ID, nil, override)
	h.notifyCapability(r, rates.CapabilityRecommending, notifications.TypeOverrideSubmitted,
		"Rate override awaiting recommendation",
		fmt.Sprintf("A %s override for lease unit %s needs a recommendation.", override.Type, override.LeaseUnitID))
	api.Created(w, override, reqID)
}

func (h *Handler) handleUpdateOverride(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	overrideID := chi.URLParam(r, "overrideID")

	var payload overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	input, err := payload.toInput(actor.UserID)
	if err != nil {
		h.fail(w, reqID, err, "override_update_failed", "failed to update override")
		return
	}

	before, err := h.Service.Store.GetOverride(r.Context(), overrideID)
	if err != nil {
		h.fail(w, reqID, err, "override_update_failed", "failed to update override")
		return
	}

	override, err := h.Service.UpdateOverride(r.Context(), overrideID, input)
	if err != nil {
		h.fail(w, reqID, err, "override_update_failed", "failed to update override")
		return
	}

	h.recordAudit(r, actor.UserID, audit.ActionOverrideUpdated, "rate_override", override.ID, before, override)
	api.Success(w, override, reqID)
}

type changeRequestPayload struct {
	LeaseUnitID   string  `json:"leaseUnitId"`
	ProposedRate  float64 `json:"proposedRate"`
	EffectiveFrom string  `json:"effectiveFrom"`
	Reason        string  `json:"reason"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload changeRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	from, err := shared.ParseDate(payload.EffectiveFrom)
	if err != nil || from.IsZero() {
		h.fail(w, reqID, &rates.ValidationError{Field: "effectiveFrom", Reason: "must be a valid date"},
			"request_create_failed", "failed to create rate change request")
		return
	}

	request, err := h.Service.CreateChangeRequest(r.Context(), rates.NewChangeRequest{
		LeaseUnitID:   payload.LeaseUnitID,
		ProposedRate:  payload.ProposedRate,
		EffectiveFrom: from,
		Reason:        payload.Reason,
		RequestedBy:   actor.UserID,
	})
	if err != nil {
		h.fail(w, reqID, err, "request_create_failed", "failed to create rate change request")
		return
	}

	h.recordAudit(r, actor.UserID, audit.ActionRequestCreated, "rate_change_request", request.ID, nil, request)
	h.notifyCapability(r, rates.CapabilityRecommending, notifications.TypeRequestSubmitted,
		"Rate change request awaiting recommendation",
		fmt.Sprintf("A rate change to %.2f for lease unit %s needs a recommendation.", request.ProposedRate, request.LeaseUnitID))
	api.Created(w, request, reqID)
}

type decisionPayload struct {
	Outcome string `json:"outcome"`
	Comment string `json:"comment"`
}

func (h *Handler) decisionHandler(kind rates.SubjectType, action rates.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetRequestID(r.Context())
		actor, _ := middleware.GetUser(r.Context())

		subjectID := chi.URLParam(r, "overrideID")
		if kind == rates.SubjectChangeRequest {
			subjectID = chi.URLParam(r, "requestID")
		}

		var payload decisionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
			return
		}

		var result rates.TransitionResult
		var err error
		if action == rates.ActionFinalize {
			result, err = h.Service.Finalize(r.Context(), kind, subjectID, actor.UserID, rates.Outcome(payload.Outcome), payload.Comment)
		} else {
			result, err = h.Service.Recommend(r.Context(), kind, subjectID, actor.UserID, rates.Outcome(payload.Outcome), payload.Comment)
		}
		if err != nil {
			h.fail(w, reqID, err, "decision_failed", "failed to record decision")
			return
		}

		if h.Metrics != nil {
			h.Metrics.RecordDecision()
		}
		auditAction := audit.ActionRecommendDecision
		if action == rates.ActionFinalize {
			auditAction = audit.ActionFinalDecision
		}
		h.recordAudit(r, actor.UserID, auditAction, string(kind), subjectID, nil, result.Decision)
		h.notifyDecision(r, kind, result)
		api.Success(w, result, reqID)
	}
}

// notifyDecision routes workflow events: a successful recommendation alerts
// the final approvers, terminal outcomes alert the requester.
func (h *Handler) notifyDecision(r *http.Request, kind rates.SubjectType, result rates.TransitionResult) {
	subjectID := result.Subject.SubjectID()
	requester := requesterOf(result.Subject)

	switch result.Stage {
	case rates.StagePendingFinal:
		ntype := notifications.TypeRequestRecommended
		if kind == rates.SubjectOverride {
			ntype = notifications.TypeOverrideRecommended
		}
		h.notifyCapability(r, rates.CapabilityFinal, ntype,
			"Recommendation awaiting final approval",
			fmt.Sprintf("%s %s was recommended and needs a final decision.", kind, subjectID))
	case rates.StageApproved:
		ntype := notifications.TypeRequestApproved
		if kind == rates.SubjectOverride {
			ntype = notifications.TypeOverrideApproved
		}
		h.notifyUser(r, requester, ntype, "Approved",
			fmt.Sprintf("Your %s %s received final approval.", kind, subjectID))
	case rates.StageRejected:
		ntype := notifications.TypeRequestRejected
		if kind == rates.SubjectOverride {
			ntype = notifications.TypeOverrideRejected
		}
		h.notifyUser(r, requester, ntype, "Rejected",
			fmt.Sprintf("Your %s %s was rejected.", kind, subjectID))
	}
}

func requesterOf(subject rates.Subject) string {
	switch s := subject.(type) {
	case rates.RateOverride:
		return s.RequestedBy
	case rates.RateChangeRequest:
		return s.RequestedBy
	}
	return ""
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	stage := rates.Stage(r.URL.Query().Get("stage"))
	if stage == "" {
		stage = rates.StagePendingRecommendation
	}
	if !stage.Valid() {
		api.Fail(w, http.StatusBadRequest, "invalid_stage", "unknown stage", reqID)
		return
	}

	items, err := h.Service.ListPending(r.Context(), actor.UserID, stage)
	if err != nil {
		h.fail(w, reqID, err, "pending_list_failed", "failed to list pending approvals")
		return
	}
	api.Success(w, items, reqID)
}

func (h *Handler) handleEffectiveRate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	leaseUnitID := chi.URLParam(r, "leaseUnitID")

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil || parsed.IsZero() {
			api.Fail(w, http.StatusBadRequest, "invalid_date", "at must be a valid date", reqID)
			return
		}
		at = parsed
	}

	resolution, err := h.Service.ResolveEffectiveRate(r.Context(), leaseUnitID, at)
	if err != nil {
		h.fail(w, reqID, err, "resolve_failed", "failed to resolve effective rate")
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordResolution()
	}
	api.Success(w, map[string]any{"leaseUnitId": leaseUnitID, "at": at.Format("2006-01-02"), "resolution": resolution}, reqID)
}

func (h *Handler) handleComposition(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	composition, err := h.Service.Composition(r.Context(), chi.URLParam(r, "leaseUnitID"))
	if err != nil {
		h.fail(w, reqID, err, "composition_failed", "failed to compose floor rents")
		return
	}
	api.Success(w, composition, reqID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	history, err := h.Service.History(r.Context(), chi.URLParam(r, "leaseUnitID"))
	if err != nil {
		h.fail(w, reqID, err, "history_failed", "failed to load history")
		return
	}
	api.Success(w, history, reqID)
}

func (h *Handler) recordAudit(r *http.Request, actorID, action, entityType, entityID string, before, after any) {
	reqID := middleware.GetRequestID(r.Context())
	if err := h.Audit.Record(r.Context(), actorID, action, entityType, entityID, reqID, shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}

func (h *Handler) notifyCapability(r *http.Request, capability rates.Capability, ntype, title, body string) {
	userIDs, err := h.Service.Store.UserIDsWithCapability(r.Context(), capability)
	if err != nil {
		slog.Warn("capability holder lookup failed", "capability", capability, "err", err)
		return
	}
	h.Notify.NotifyAll(r.Context(), userIDs, ntype, title, body)
}

func (h *Handler) notifyUser(r *http.Request, userID, ntype, title, body string) {
	if userID == "" {
		return
	}
	if err := h.Notify.Notify(r.Context(), userID, ntype, title, body); err != nil {
		slog.Warn("notification failed", "type", ntype, "err", err)
	}
}
