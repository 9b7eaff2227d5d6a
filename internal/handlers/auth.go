package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/commdir/apiserver/internal/services"
)

// AuthHandler provides login, logout, and identity endpoints.
type AuthHandler struct {
	authService  *services.AuthService
	adminService *services.AdminService
	logger       *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, adminService *services.AdminService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		authService:  authService,
		adminService: adminService,
		logger:       logger,
	}
}

// AuthRouter registers auth routes on the given router.
// loginLimiter, if non-nil, wraps the login route.
func AuthRouter(
	r chi.Router,
	handler *AuthHandler,
	authMiddleware func(http.Handler) http.Handler,
	loginLimiter func(http.Handler) http.Handler,
) {
	if loginLimiter != nil {
		r.With(loginLimiter).Post("/login", handler.Login)
	} else {
		r.Post("/login", handler.Login)
	}
	r.Post("/logout", handler.Logout)
	r.With(authMiddleware).Get("/me", handler.Me)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns a bearer token with the admin profile.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Logout acknowledges the request. The client is responsible for discarding its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.authService.Logout(r.Context()))
}

// Me returns the profile of the authenticated admin.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	admin, err := h.adminService.GetByID(r.Context(), claims.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeServiceError(w, r, h.logger, err, "failed to load admin")
		return
	}

	writeJSON(w, http.StatusOK, admin.Profile())
}
