package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ClaimsEncoder signs and verifies vouchers of a single purpose.
type ClaimsEncoder struct {
	Purpose VoucherPurpose
	TTL     time.Duration
	now     func() time.Time
}

var (
	// ActivationClaims mints vouchers proving possession of an email address
	ActivationClaims = ClaimsEncoder{Purpose: PurposeActivation, TTL: ActivationVoucherTTL}
	// AuthorizationClaims mints vouchers for the sign in flow
	AuthorizationClaims = ClaimsEncoder{Purpose: PurposeAuthorization, TTL: AuthorizationVoucherTTL}
)

// WithClock returns a copy of the encoder reading time from now
func (e ClaimsEncoder) WithClock(now func() time.Time) ClaimsEncoder {
	e.now = now
	return e
}

func (e ClaimsEncoder) clock() func() time.Time {
	if e.now == nil {
		return time.Now
	}
	return e.now
}

// Encode signs value into a voucher expiring TTL after now. The returned
// ExpiresAt is exactly the "exp" claim embedded in the token.
func (e ClaimsEncoder) Encode(value, issuer, keyID string, secret []byte) (*VoucherData, error) {
	if len(secret) == 0 {
		return nil, goerrors.New("voucher secret is required", goerrors.CategoryBadInput)
	}
	if e.TTL <= 0 {
		return nil, goerrors.New("voucher TTL must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": e.Purpose})
	}

	issuedAt := e.clock()().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(e.TTL)

	claims := &VoucherClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   value,
			Audience:  jwt.ClaimStrings{string(e.Purpose)},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(secret)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign voucher")
	}

	return &VoucherData{
		Value:     signed,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// EncodeWith is Encode using the issuer, key id and secret of keys
func (e ClaimsEncoder) EncodeWith(value string, keys KeyMaterial) (*VoucherData, error) {
	return e.Encode(value, keys.Issuer, keys.KeyID, keys.Secret)
}

// Decode verifies the signature, key id, issuer, purpose and expiry of a
// voucher and returns its claims.
func (e ClaimsEncoder) Decode(tokenString, issuer, keyID string, secret []byte) (*VoucherClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(e.Purpose)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(e.clock()),
	}
	if issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &VoucherClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != keyID {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrVoucherExpired
		}
		return nil, ErrVoucherMalformed.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	claims, ok := token.Claims.(*VoucherClaims)
	if !ok || !token.Valid || claims.Value() == "" {
		return nil, ErrVoucherMalformed
	}

	return claims, nil
}

// DecodeWith is Decode using the issuer, key id and secret of keys
func (e ClaimsEncoder) DecodeWith(tokenString string, keys KeyMaterial) (*VoucherClaims, error) {
	return e.Decode(tokenString, keys.Issuer, keys.KeyID, keys.Secret)
}
