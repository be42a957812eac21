package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/miniiam/apiserver/internal/services"
)

// UserHandler provides account administration endpoints.
type UserHandler struct {
	identity *services.IdentityService
}

func NewUserHandler(identity *services.IdentityService) *UserHandler {
	return &UserHandler{identity: identity}
}

// UserRouter registers user routes. Every route requires authentication.
func UserRouter(r chi.Router, identity *services.IdentityService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(identity)

	r.Use(authMiddleware)
	r.Post("/{userID}/deprovision", handler.Deprovision)
}

type DeprovisionResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// Deprovision deactivates a user. Admin only.
func (h *UserHandler) Deprovision(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.identity.Deprovision(r.Context(), claim, userID, origin(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DeprovisionResponse{
		Message: "User deprovisioned",
		User:    newUserResponse(user),
	})
}
