package portfoliohandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/portfolio"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Store *portfolio.Store
	Audit *audit.Service
}

func NewHandler(store *portfolio.Store, auditSvc *audit.Service) *Handler {
	return &Handler{Store: store, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	write := middleware.RequireRole(auth.RoleAdmin, auth.RoleManager)

	r.Route("/properties", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleListProperties)
		r.With(write).Post("/", h.handleCreateProperty)
		r.Get("/{propertyID}/units", h.handleListUnits)
		r.With(write).Post("/{propertyID}/units", h.handleCreateUnit)
	})
	r.Route("/units", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/{unitID}/floors", h.handleListFloors)
		r.With(write).Post("/{unitID}/floors", h.handleAddFloor)
	})
	r.Route("/floors", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.With(write).Patch("/{floorID}", h.handleUpdateFloor)
	})
	r.Route("/tenants", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleListTenants)
		r.With(write).Post("/", h.handleCreateTenant)
	})
	r.Route("/leases", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleListLeases)
		r.With(write).Post("/", h.handleCreateLease)
		r.With(write).Post("/{leaseID}/terminate", h.handleTerminateLease)
	})
}

type createPropertyRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h *Handler) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload createPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("code", payload.Code, "is required")
	v.Required("name", payload.Name, "is required")
	if v.Reject(w, reqID) {
		return
	}

	property, err := h.Store.CreateProperty(r.Context(), payload.Code, payload.Name, payload.Address)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "property_create_failed", "failed to create property", reqID)
		return
	}
	api.Created(w, property, reqID)
}

func (h *Handler) handleListProperties(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	properties, err := h.Store.ListProperties(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "property_list_failed", "failed to list properties", reqID)
		return
	}
	api.Success(w, properties, reqID)
}

type createUnitRequest struct {
	Name      string  `json:"name"`
	TotalArea float64 `json:"totalArea"`
	TotalRent float64 `json:"totalRent"`
}

func (h *Handler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	propertyID := chi.URLParam(r, "propertyID")

	var payload createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	if payload.TotalRent < 0 {
		v.Add("totalRent", "must not be negative")
	}
	if v.Reject(w, reqID) {
		return
	}

	unit, err := h.Store.CreateUnit(r.Context(), propertyID, payload.Name, payload.TotalArea, payload.TotalRent)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "unit_create_failed", "failed to create unit", reqID)
		return
	}
	api.Created(w, unit, reqID)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	units, err := h.Store.ListUnits(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "unit_list_failed", "failed to list units", reqID)
		return
	}
	api.Success(w, units, reqID)
}

type floorRequest struct {
	Level int     `json:"level"`
	Name  string  `json:"name"`
	Area  float64 `json:"area"`
	Rate  float64 `json:"rate"`
}

func (h *Handler) handleAddFloor(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	unitID := chi.URLParam(r, "unitID")

	var payload floorRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	if payload.Rate < 0 {
		v.Add("rate", "must not be negative")
	}
	if v.Reject(w, reqID) {
		return
	}

	floor, err := h.Store.AddFloor(r.Context(), unitID, payload.Level, payload.Name, payload.Area, payload.Rate)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "floor_create_failed", "failed to add floor", reqID)
		return
	}
	api.Created(w, floor, reqID)
}

func (h *Handler) handleUpdateFloor(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	floorID := chi.URLParam(r, "floorID")

	var payload floorRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	floor, err := h.Store.UpdateFloor(r.Context(), floorID, payload.Area, payload.Rate)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "floor not found", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "floor_update_failed", "failed to update floor", reqID)
		return
	}
	api.Success(w, floor, reqID)
}

func (h *Handler) handleListFloors(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	floors, err := h.Store.ListFloors(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "floor_list_failed", "failed to list floors", reqID)
		return
	}
	api.Success(w, floors, reqID)
}

type createTenantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	if v.Reject(w, reqID) {
		return
	}

	tenant, err := h.Store.CreateTenant(r.Context(), payload.Name, payload.Email, payload.Phone)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "tenant_create_failed", "failed to create tenant", reqID)
		return
	}
	api.Created(w, tenant, reqID)
}

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "tenant_list_failed", "failed to list tenants", reqID)
		return
	}
	api.Success(w, tenants, reqID)
}

type createLeaseRequest struct {
	TenantID  string                   `json:"tenantId"`
	StartDate string                   `json:"startDate"`
	EndDate   string                   `json:"endDate"`
	Units     []portfolio.NewLeaseUnit `json:"units"`
}

func (h *Handler) handleCreateLease(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload createLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("tenantId", payload.TenantID, "is required")
	if len(payload.Units) == 0 {
		v.Add("units", "at least one unit is required")
	}
	start, ok := v.Date("startDate", payload.StartDate)
	if !ok {
		v.Reject(w, reqID)
		return
	}
	input := portfolio.NewLease{TenantID: payload.TenantID, StartDate: start, Units: payload.Units}
	if payload.EndDate != "" {
		end, ok := v.Date("endDate", payload.EndDate)
		if ok {
			v.DateOrder("startDate", start, "endDate", end)
			input.EndDate = &end
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	lease, err := h.Store.CreateLease(r.Context(), input)
	if err != nil {
		if errors.Is(err, portfolio.ErrUnitAlreadyLeased) {
			api.Fail(w, http.StatusConflict, "unit_already_leased", "a unit already has an active lease", reqID)
			return
		}
		if errors.Is(err, portfolio.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "tenant or unit not found", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "lease_create_failed", "failed to create lease", reqID)
		return
	}

	if err := h.Audit.Record(r.Context(), actor.UserID, audit.ActionLeaseCreated, "lease", lease.ID, reqID, shared.ClientIP(r), nil, lease); err != nil {
		slog.Warn("audit lease.created failed", "err", err)
	}
	api.Created(w, lease, reqID)
}

func (h *Handler) handleListLeases(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	leases, err := h.Store.ListLeases(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "lease_list_failed", "failed to list leases", reqID)
		return
	}
	api.Success(w, leases, reqID)
}

func (h *Handler) handleTerminateLease(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	leaseID := chi.URLParam(r, "leaseID")

	if err := h.Store.TerminateLease(r.Context(), leaseID); err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "active lease not found", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "lease_terminate_failed", "failed to terminate lease", reqID)
		return
	}

	if err := h.Audit.Record(r.Context(), actor.UserID, audit.ActionLeaseTerminated, "lease", leaseID, reqID, shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit lease.terminated failed", "err", err)
	}
	api.Success(w, map[string]string{"id": leaseID}, reqID)
}
