package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextClaimsKey contextKey = "claims"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges an operation without returning a record.
type MessageResponse struct {
	Message string `json:"message"`
}

func claimsFromContext(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(contextClaimsKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, errors.New("missing claims")
	}
	if claims.ID < 1 {
		return nil, errors.New("invalid subject")
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func parseAdminID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "adminID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid admin id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors to sanitized responses.
// fallback is the message used for internal failures, which are logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, services.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "email already exists")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "admin not found")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error())
	default:
		logger.ErrorContext(r.Context(), fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}
