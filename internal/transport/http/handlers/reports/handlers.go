package reportshandler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"pms/internal/domain/reports"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Service *reports.Service
}

func NewHandler(service *reports.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/summary", h.handleSummary)
		r.Get("/lease-units/{leaseUnitID}/statement", h.handleStatement)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	summary, err := h.Service.Summary(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "summary_failed", "failed to build summary", reqID)
		return
	}
	api.Success(w, summary, reqID)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
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

	statement, err := h.Service.Statement(r.Context(), leaseUnitID, at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			api.Fail(w, http.StatusNotFound, "not_found", "lease unit not found", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to build statement", reqID)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "statement-"+leaseUnitID+".csv"))
		if err := h.Service.WriteCSV(w, statement); err != nil {
			api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to write csv", reqID)
		}
	case "", "pdf":
		var buf bytes.Buffer
		if err := h.Service.WritePDF(&buf, statement); err != nil {
			api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to render pdf", reqID)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "statement-"+leaseUnitID+".pdf"))
		_, _ = w.Write(buf.Bytes())
	default:
		api.Fail(w, http.StatusBadRequest, "invalid_format", "format must be pdf or csv", reqID)
	}
}
