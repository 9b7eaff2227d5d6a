package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/commdir/apiserver/internal/roles"
	"github.com/commdir/apiserver/internal/services"
	"github.com/commdir/apiserver/types"
)

// AdminHandler provides HTTP handlers for admin account management.
type AdminHandler struct {
	adminService *services.AdminService
	logger       *slog.Logger
}

// NewAdminHandler constructs a handler with the provided service.
func NewAdminHandler(adminService *services.AdminService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// AdminRouterOptions configures route protection for AdminRouter.
type AdminRouterOptions struct {
	// Authenticate enforces a valid bearer token. Required.
	Authenticate func(http.Handler) http.Handler

	// Authorize runs after Authenticate on management routes. Optional.
	Authorize func(http.Handler) http.Handler

	// RegistrationOpen leaves /register unauthenticated. When false,
	// registering requires a token carrying the admin role.
	RegistrationOpen bool
}

// AdminRouter registers admin routes on the given router.
func AdminRouter(r chi.Router, handler *AdminHandler, opts AdminRouterOptions) {
	guards := []func(http.Handler) http.Handler{opts.Authenticate}
	if opts.Authorize != nil {
		guards = append(guards, opts.Authorize)
	}

	if opts.RegistrationOpen {
		r.Post("/register", handler.Register)
	} else {
		r.With(opts.Authenticate, RequireRole(roles.Admin)).Post("/register", handler.Register)
	}

	r.Group(func(r chi.Router) {
		r.Use(guards...)
		r.Get("/", handler.ListAdmins)
		r.Route("/{adminID}", func(r chi.Router) {
			r.Get("/", handler.GetAdmin)
			r.Put("/", handler.UpdateAdmin)
			r.Delete("/", handler.DeleteAdmin)
		})
	})
}

type RegisterRequest struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     roles.RoleInput `json:"role"`
}

// UpdateAdminRequest carries optional fields; omitted fields are left unchanged.
type UpdateAdminRequest struct {
	Username *string         `json:"username"`
	Email    *string         `json:"email"`
	Password *string         `json:"password"`
	Role     roles.RoleInput `json:"role"`
}

// Register creates a new admin account.
func (h *AdminHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	admin, err := h.adminService.Create(r.Context(), services.CreateAdminInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create admin")
		return
	}

	writeJSON(w, http.StatusCreated, admin)
}

func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.adminService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list admins")
		return
	}
	if admins == nil {
		admins = []types.AdminAccount{}
	}

	writeJSON(w, http.StatusOK, admins)
}

func (h *AdminHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdminID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	admin, err := h.adminService.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch admin")
		return
	}

	writeJSON(w, http.StatusOK, admin)
}

func (h *AdminHandler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdminID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.adminService.Update(r.Context(), id, services.UpdateAdminInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update admin")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdminID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.adminService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete admin")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "admin deleted"})
}
