package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AdminAccount represents a Community Admin account.
// It contains identity, roles, and audit metadata.
type AdminAccount struct {
	// ID is the unique identifier of the account, assigned on creation.
	ID int `json:"id" db:"id"`

	// Username is the display name of the admin. It is not unique.
	Username string `json:"username" db:"username"`

	// Email is the login identifier. Exactly one account may hold a given email.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the salted one-way hash of the admin's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Roles is the ordered list of role names granted to the admin.
	Roles RoleList `json:"roles" db:"roles"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile returns the public view of the account.
func (a AdminAccount) Profile() AdminProfile {
	return AdminProfile{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Roles:    a.Roles.Clone(),
	}
}

// AdminProfile is the view of an account returned to authenticated clients.
type AdminProfile struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    RoleList `json:"roles"`
}

// RoleList is an ordered list of role names, persisted as a JSON array.
type RoleList []string

// Has reports whether role is present in the list.
func (l RoleList) Has(role string) bool {
	for _, r := range l {
		if r == role {
			return true
		}
	}
	return false
}

// Clone returns a copy of the list. The result is never nil.
func (l RoleList) Clone() RoleList {
	out := make(RoleList, len(l))
	copy(out, l)
	return out
}

// MarshalJSON encodes a nil list as an empty array.
func (l RoleList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Value implements driver.Valuer.
func (l RoleList) Value() (driver.Value, error) {
	data, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *RoleList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = RoleList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("roles: unsupported column type %T", src)
	}

	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return errors.New("roles: column is not a JSON array")
	}
	if roles == nil {
		roles = []string{}
	}
	*l = roles
	return nil
}
