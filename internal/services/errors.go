package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/commdir/apiserver/internal/store"
)

var (
	// ErrNotFound is returned when no admin has the requested id.
	ErrNotFound = store.ErrNotFound

	// ErrDuplicateEmail is returned when another admin already holds the email.
	ErrDuplicateEmail = store.ErrDuplicateEmail

	// ErrInvalidCredentials is returned for any failed login, whether the
	// email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInternal marks failures of hashing, signing, or storage primitives.
	ErrInternal = errors.New("internal failure")
)

// ValidationError reports malformed or missing request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func newValidationError(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs tag validation and converts failures into a ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = describeTag(fe.Tag())
	}
	return &ValidationError{Fields: fields}
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must not be empty"
	default:
		return "is invalid"
	}
}
