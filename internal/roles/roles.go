// Package roles normalizes the role collection carried by an admin account.
//
// Callers may supply roles as a single string, a list of strings, null, or not
// at all. RoleInput captures which of those forms was used so that updates can
// distinguish "leave roles alone" from "clear roles".
package roles

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/commdir/apiserver/types"
)

// Admin is the role required for account management when role checks are enabled.
const Admin = "admin"

type inputKind int

const (
	kindAbsent inputKind = iota
	kindNull
	kindScalar
	kindList
)

// RoleInput is the caller-supplied role field: absent, null, a scalar, or a list.
// The zero value is Absent.
type RoleInput struct {
	kind   inputKind
	scalar string
	list   []string
}

// Absent returns an input representing an omitted role field.
func Absent() RoleInput {
	return RoleInput{kind: kindAbsent}
}

// Scalar returns an input holding a single role name.
func Scalar(role string) RoleInput {
	return RoleInput{kind: kindScalar, scalar: role}
}

// List returns an input holding a list of role names.
func List(roles ...string) RoleInput {
	cp := make([]string, len(roles))
	copy(cp, roles)
	return RoleInput{kind: kindList, list: cp}
}

// Present reports whether the caller supplied the field, including an explicit null.
func (in RoleInput) Present() bool {
	return in.kind != kindAbsent
}

// UnmarshalJSON accepts a string, an array of strings, or null.
func (in *RoleInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*in = RoleInput{kind: kindNull}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = Scalar(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("role must be a string or an array of strings")
	}
	*in = List(list...)
	return nil
}

// Normalize maps an input to a role list. The result is never nil.
// Order and duplicates are preserved; empty names are dropped.
func Normalize(in RoleInput) types.RoleList {
	switch in.kind {
	case kindScalar:
		if in.scalar == "" {
			return types.RoleList{}
		}
		return types.RoleList{in.scalar}
	case kindList:
		out := make(types.RoleList, 0, len(in.list))
		for _, role := range in.list {
			if role != "" {
				out = append(out, role)
			}
		}
		return out
	default:
		return types.RoleList{}
	}
}
