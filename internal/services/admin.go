package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/events"
	"github.com/commdir/apiserver/internal/roles"
	"github.com/commdir/apiserver/types"
)

// AdminRepository defines persistence operations for admin accounts.
type AdminRepository interface {
	GetByID(ctx context.Context, id int) (types.AdminAccount, error)
	GetByEmail(ctx context.Context, email string) (types.AdminAccount, error)
	List(ctx context.Context) ([]types.AdminAccount, error)
	Create(ctx context.Context, admin types.AdminAccount) (types.AdminAccount, error)
	Update(ctx context.Context, admin types.AdminAccount) (types.AdminAccount, error)
	Delete(ctx context.Context, id int) error
}

// EventPublisher receives account lifecycle notifications.
type EventPublisher interface {
	Publish(ctx context.Context, eventType events.Type, admin types.AdminAccount) error
}

// CreateAdminInput is the payload for registering an admin.
type CreateAdminInput struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Role     roles.RoleInput
}

// UpdateAdminInput carries the fields to change. Nil pointers and an absent
// Role leave the stored value untouched; an empty Password is ignored.
type UpdateAdminInput struct {
	Username *string `validate:"omitnil,min=1"`
	Email    *string `validate:"omitnil,email"`
	Password *string
	Role     roles.RoleInput
}

// AdminService encapsulates the admin account lifecycle.
type AdminService struct {
	repo      AdminRepository
	hasher    auth.PasswordHasher
	publisher EventPublisher
	logger    *slog.Logger
}

// NewAdminService constructs an AdminService. publisher may be nil.
func NewAdminService(repo AdminRepository, hasher auth.PasswordHasher, publisher EventPublisher, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		repo:      repo,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
	}
}

// Create registers a new admin. The email pre-check only exits early; the
// storage unique constraint decides concurrent races.
func (s *AdminService) Create(ctx context.Context, in CreateAdminInput) (types.AdminAccount, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return types.AdminAccount{}, err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return types.AdminAccount{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return types.AdminAccount{}, internalError("check email", err)
	}

	hash, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		return types.AdminAccount{}, err
	}

	admin, err := s.repo.Create(ctx, types.AdminAccount{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Roles:        roles.Normalize(in.Role),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return types.AdminAccount{}, ErrDuplicateEmail
		}
		return types.AdminAccount{}, internalError("create admin", err)
	}

	s.logger.InfoContext(ctx, "admin created", "admin_id", admin.ID, "roles", []string(admin.Roles))
	s.publish(ctx, events.AdminCreated, admin)
	return admin, nil
}

func (s *AdminService) GetByID(ctx context.Context, id int) (types.AdminAccount, error) {
	admin, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.AdminAccount{}, ErrNotFound
		}
		return types.AdminAccount{}, internalError("get admin", err)
	}
	return admin, nil
}

// List returns every admin in insertion order.
func (s *AdminService) List(ctx context.Context) ([]types.AdminAccount, error) {
	admins, err := s.repo.List(ctx)
	if err != nil {
		return nil, internalError("list admins", err)
	}
	return admins, nil
}

// Update applies the fields present in in. Email uniqueness is not pre-checked
// against other accounts; a storage-level conflict still yields ErrDuplicateEmail.
func (s *AdminService) Update(ctx context.Context, id int, in UpdateAdminInput) (types.AdminAccount, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if in.Email != nil {
		trimmed := strings.TrimSpace(*in.Email)
		in.Email = &trimmed
	}
	if err := validateStruct(in); err != nil {
		return types.AdminAccount{}, err
	}

	admin, err := s.GetByID(ctx, id)
	if err != nil {
		return types.AdminAccount{}, err
	}

	if in.Username != nil {
		admin.Username = *in.Username
	}
	if in.Email != nil {
		admin.Email = *in.Email
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := s.hashPassword(ctx, *in.Password)
		if err != nil {
			return types.AdminAccount{}, err
		}
		admin.PasswordHash = hash
	}
	if in.Role.Present() {
		admin.Roles = roles.Normalize(in.Role)
	}

	updated, err := s.repo.Update(ctx, admin)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return types.AdminAccount{}, ErrNotFound
		case errors.Is(err, ErrDuplicateEmail):
			return types.AdminAccount{}, ErrDuplicateEmail
		default:
			return types.AdminAccount{}, internalError("update admin", err)
		}
	}

	s.logger.InfoContext(ctx, "admin updated", "admin_id", updated.ID)
	s.publish(ctx, events.AdminUpdated, updated)
	return updated, nil
}

// Delete permanently removes an admin.
func (s *AdminService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError("delete admin", err)
	}

	s.logger.InfoContext(ctx, "admin deleted", "admin_id", id)
	s.publish(ctx, events.AdminDeleted, types.AdminAccount{ID: id})
	return nil
}

func (s *AdminService) hashPassword(ctx context.Context, password string) (string, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmptyPassword):
			return "", newValidationError("password", "is required")
		case errors.Is(err, auth.ErrPasswordTooLong):
			return "", newValidationError("password", "must be at most 72 bytes")
		default:
			return "", internalError("hash password", err)
		}
	}
	return hash, nil
}

// publish is best effort: the record change has already committed.
func (s *AdminService) publish(ctx context.Context, eventType events.Type, admin types.AdminAccount) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, admin); err != nil {
		s.logger.WarnContext(ctx, "failed to publish admin event",
			"event", string(eventType),
			"admin_id", admin.ID,
			"error", err,
		)
	}
}
