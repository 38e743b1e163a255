package auth

import (
	"database/sql/driver"
	"fmt"
)

// EmailRole is the functional classification of an address on an account
type EmailRole string

const (
	// EmailRolePrimary is the address the account signs in and is contacted with
	EmailRolePrimary EmailRole = "primary"
	// EmailRoleGeneral is any additional address
	EmailRoleGeneral EmailRole = "general"
)

// ActivationState is the verification stage of an email identity
type ActivationState string

const (
	// ActivationStatePending is the state every identity is inserted with
	ActivationStatePending ActivationState = "pending"
	// ActivationStateActive is reached by redeeming an activation voucher
	ActivationStateActive ActivationState = "active"
)

// UserState is the lifecycle stage of an account
type UserState string

const (
	UserStatePending UserState = "pending"
	UserStateActive  UserState = "active"
)

// IsValid checks if the role is one of the predefined roles
func (r EmailRole) IsValid() bool {
	switch r {
	case EmailRolePrimary, EmailRoleGeneral:
		return true
	default:
		return false
	}
}

// ParseEmailRole parses a stored value, rejecting unknown roles
func ParseEmailRole(s string) (EmailRole, error) {
	r := EmailRole(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown email role %q", s)
	}
	return r, nil
}

// Value implements driver.Valuer.
func (r EmailRole) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("unknown email role %q", string(r))
	}
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *EmailRole) Scan(src any) error {
	s, err := scanEnum("email role", src)
	if err != nil {
		return err
	}
	parsed, err := ParseEmailRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsValid checks if the state is one of the predefined states
func (s ActivationState) IsValid() bool {
	switch s {
	case ActivationStatePending, ActivationStateActive:
		return true
	default:
		return false
	}
}

// ParseActivationState parses a stored value, rejecting unknown states
func ParseActivationState(s string) (ActivationState, error) {
	st := ActivationState(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown activation state %q", s)
	}
	return st, nil
}

// Value implements driver.Valuer.
func (s ActivationState) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown activation state %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *ActivationState) Scan(src any) error {
	raw, err := scanEnum("activation state", src)
	if err != nil {
		return err
	}
	parsed, err := ParseActivationState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s UserState) IsValid() bool {
	return s == UserStatePending || s == UserStateActive
}

// Value implements driver.Valuer.
func (s UserState) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown user state %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *UserState) Scan(src any) error {
	raw, err := scanEnum("user state", src)
	if err != nil {
		return err
	}
	st := UserState(raw)
	if !st.IsValid() {
		return fmt.Errorf("unknown user state %q", raw)
	}
	*s = st
	return nil
}

func scanEnum(name string, src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("%s: unexpected NULL", name)
	default:
		return "", fmt.Errorf("%s: unsupported type %T", name, src)
	}
}
