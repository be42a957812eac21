package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/miniiam/apiserver/internal/services"
)

// ReportHandler provides governance report endpoints.
type ReportHandler struct {
	reports *services.ReportService
}

func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ReportRouter registers report routes. Every route requires authentication.
func ReportRouter(r chi.Router, reports *services.ReportService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewReportHandler(reports)

	r.Use(authMiddleware)
	r.Get("/access-review", handler.AccessReview)
	r.Post("/access-review/export", handler.ExportAccessReview)
}

func (h *ReportHandler) AccessReview(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	review, err := h.reports.AccessReview(r.Context(), claim)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReportHandler) ExportAccessReview(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.reports.Export(r.Context(), claim)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
