package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VoucherPurpose separates vouchers minted for different flows. It is
// carried in the audience claim so a voucher of one purpose never decodes
// as another.
type VoucherPurpose string

const (
	PurposeActivation    VoucherPurpose = "activation"
	PurposeAuthorization VoucherPurpose = "authorization"
)

const (
	// ActivationVoucherTTL is how long an activation voucher stays valid
	ActivationVoucherTTL = 24 * time.Hour
	// AuthorizationVoucherTTL is how long an authorization voucher stays valid
	AuthorizationVoucherTTL = time.Hour
)

// VoucherClaims are the signed facts inside a voucher. The subject holds the
// value the voucher vouches for (the activation secret for activation vouchers);
// the key id travels in the "kid" header.
type VoucherClaims struct {
	jwt.RegisteredClaims
}

// Value returns the subject value
func (c *VoucherClaims) Value() string {
	return c.RegisteredClaims.Subject
}

// Purpose returns the purpose recorded in the audience
func (c *VoucherClaims) Purpose() VoucherPurpose {
	if len(c.RegisteredClaims.Audience) == 0 {
		return ""
	}
	return VoucherPurpose(c.RegisteredClaims.Audience[0])
}

// Expires returns the expiration time
func (c *VoucherClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *VoucherClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
