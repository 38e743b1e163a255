package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidEmailIdentity = "INVALID_EMAIL_IDENTITY"
	textCodeVoucherExpired       = "VOUCHER_EXPIRED"
	textCodeVoucherMalformed     = "VOUCHER_MALFORMED"
	textCodeVoucherNotFound      = "VOUCHER_NOT_FOUND"
	textCodeIdentityNotFound     = "EMAIL_IDENTITY_NOT_FOUND"
	textCodeInvalidRegistration  = "INVALID_REGISTRATION"
	textCodeSignupDisabled       = "SIGNUP_DISABLED"
)

// ErrInvalidEmailIdentity is returned by NewEmailIdentity.Validate
var ErrInvalidEmailIdentity = goerrors.New("invalid email identity", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidEmailIdentity).
	WithCode(goerrors.CodeBadRequest)

// ErrVoucherExpired is returned when the voucher or its stored secret expired
var ErrVoucherExpired = goerrors.New("voucher is expired", goerrors.CategoryAuth).
	WithTextCode(textCodeVoucherExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrVoucherMalformed is returned for vouchers that fail signature, key id,
// issuer or purpose checks.
var ErrVoucherMalformed = goerrors.New("voucher is malformed", goerrors.CategoryAuth).
	WithTextCode(textCodeVoucherMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrVoucherNotFound is returned when no pending identity holds the voucher's
// secret, e.g. because a later grant superseded it.
var ErrVoucherNotFound = goerrors.New("voucher not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeVoucherNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailIdentityNotFound is the error we return for non found identities
var ErrEmailIdentityNotFound = goerrors.New("email identity not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidRegistration is returned for registration messages failing validation
var ErrInvalidRegistration = goerrors.New("invalid registration", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidRegistration).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrSignupDisabled is returned when the signup feature gate is off
var ErrSignupDisabled = goerrors.New("signup is disabled", goerrors.CategoryAuthz).
	WithTextCode(textCodeSignupDisabled).
	WithCode(goerrors.CodeForbidden)
