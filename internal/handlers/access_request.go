package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/miniiam/apiserver/internal/services"
	"github.com/miniiam/apiserver/types"
)

// AccessRequestHandler provides the access request workflow endpoints.
type AccessRequestHandler struct {
	requests *services.AccessRequestService
}

func NewAccessRequestHandler(requests *services.AccessRequestService) *AccessRequestHandler {
	return &AccessRequestHandler{requests: requests}
}

// AccessRequestRouter registers access request routes. Every route requires
// authentication.
func AccessRequestRouter(r chi.Router, requests *services.AccessRequestService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAccessRequestHandler(requests)

	r.Use(authMiddleware)
	r.Post("/", handler.Submit)
	r.Get("/", handler.ListMine)
	r.Route("/{requestID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Post("/approve", handler.resolve(types.StatusApproved))
		r.Post("/reject", handler.resolve(types.StatusRejected))
	})
}

type SubmitAccessRequest struct {
	Resource string `json:"resource"`
	Reason   string `json:"reason"`
}

type SubmitAccessResponse struct {
	ID     int                 `json:"id"`
	Status types.RequestStatus `json:"status"`
}

// Submit files a new Pending request for the caller.
func (h *AccessRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Resource = strings.TrimSpace(req.Resource)
	if req.Resource == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	created, err := h.requests.Submit(r.Context(), claim, req.Resource, req.Reason, origin(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitAccessResponse{ID: created.ID, Status: created.Status})
}

// ListMine returns the caller's own requests.
func (h *AccessRequestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.requests.ListMine(r.Context(), claim)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, requests)
}

// Get returns one request to its requester or an eligible approver.
func (h *AccessRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.requests.Get(r.Context(), claim, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func (h *AccessRequestHandler) resolve(decision types.RequestStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claim, ok := claimFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := parseIDParam(r, "requestID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resolved, err := h.requests.Resolve(r.Context(), claim, id, decision, origin(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, resolved)
	}
}
