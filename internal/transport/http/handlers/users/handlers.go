package usershandler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Store *auth.Store
	Audit *audit.Service
}

func NewHandler(store *auth.Store, auditSvc *audit.Service) *Handler {
	return &Handler{Store: store, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.RequireRole(auth.RoleAdmin))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Patch("/{userID}/approvers", h.handleSetApprovers)
		r.Patch("/{userID}/active", h.handleSetActive)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "users_list_failed", "failed to list users", reqID)
		return
	}
	api.Success(w, users, reqID)
}

type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"fullName"`
	Role         string `json:"role"`
	Recommending bool   `json:"isRecommendingApprover"`
	Final        bool   `json:"isFinalApprover"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Required("fullName", payload.FullName, "is required")
	if len(payload.Password) < 8 {
		v.Add("password", "must be at least 8 characters")
	}
	if !auth.ValidRole(payload.Role) {
		v.Add("role", "must be one of admin, manager, staff")
	}
	if v.Reject(w, reqID) {
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", reqID)
		return
	}

	id, err := h.Store.CreateUser(r.Context(), payload.Email, hash, payload.FullName, payload.Role, payload.Recommending, payload.Final)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", reqID)
		return
	}

	if err := h.Audit.Record(r.Context(), actor.UserID, audit.ActionUserCreated, "user", id, reqID, shared.ClientIP(r), nil, map[string]any{
		"email": payload.Email, "role": payload.Role,
		"isRecommendingApprover": payload.Recommending, "isFinalApprover": payload.Final,
	}); err != nil {
		slog.Warn("audit user.created failed", "err", err)
	}
	api.Created(w, map[string]string{"id": id}, reqID)
}

type approverFlagsRequest struct {
	Recommending bool `json:"isRecommendingApprover"`
	Final        bool `json:"isFinalApprover"`
}

func (h *Handler) handleSetApprovers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")

	var payload approverFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	if err := h.Store.SetApproverFlags(r.Context(), userID, payload.Recommending, payload.Final); err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_update_failed", "failed to update approver flags", reqID)
		return
	}

	if err := h.Audit.Record(r.Context(), actor.UserID, audit.ActionUserUpdated, "user", userID, reqID, shared.ClientIP(r), nil, map[string]any{
		"isRecommendingApprover": payload.Recommending, "isFinalApprover": payload.Final,
	}); err != nil {
		slog.Warn("audit user.updated failed", "err", err)
	}
	api.Success(w, map[string]string{"id": userID}, reqID)
}

type activeRequest struct {
	Active bool `json:"isActive"`
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")

	var payload activeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	if err := h.Store.SetActive(r.Context(), userID, payload.Active); err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_update_failed", "failed to update user", reqID)
		return
	}

	if err := h.Audit.Record(r.Context(), actor.UserID, audit.ActionUserUpdated, "user", userID, reqID, shared.ClientIP(r), nil, map[string]any{
		"isActive": payload.Active,
	}); err != nil {
		slog.Warn("audit user.updated failed", "err", err)
	}
	api.Success(w, map[string]string{"id": userID}, reqID)
}
