package auth

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/uptrace/bun"
)

// Column widths of users and user_emails, see migrations/sql.
const (
	MaxEmailLength    = 128
	MaxUsernameLength = 32
	MaxNameLength     = 64
)

// User is the account that owns one or more email identities
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64            `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Name          *string          `bun:"name" json:"name,omitempty"`
	Username      *string          `bun:"username,unique" json:"username,omitempty"`
	Email         string           `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string           `bun:"password_hash,notnull" json:"-"`
	State         UserState        `bun:"state,notnull" json:"state,omitempty"`
	Emails        []*EmailIdentity `bun:"rel:has-many,join:id=user_id" json:"emails,omitempty"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// PrimaryEmail returns the loaded primary identity, if any.
func (u *User) PrimaryEmail() *EmailIdentity {
	if u == nil {
		return nil
	}
	for _, e := range u.Emails {
		if e != nil && e.Role == EmailRolePrimary {
			return e
		}
	}
	return nil
}

// NewEmailIdentity is the transient value consumed once by UserEmails.Insert.
type NewEmailIdentity struct {
	UserID          int64
	Email           string
	Role            EmailRole
	ActivationState ActivationState
}

// DefaultNewEmailIdentity returns a value that fails validation until
// UserID and Email are assigned.
func DefaultNewEmailIdentity() *NewEmailIdentity {
	return &NewEmailIdentity{
		UserID:          -1,
		Email:           "",
		Role:            EmailRoleGeneral,
		ActivationState: ActivationStatePending,
	}
}

// NewEmailIdentityFromUser is the registration path: the address the account
// signed up with becomes its primary identity.
func NewEmailIdentityFromUser(user *User) *NewEmailIdentity {
	n := DefaultNewEmailIdentity()
	if user == nil {
		return n
	}
	n.UserID = user.ID
	n.Email = user.Email
	n.Role = EmailRolePrimary
	return n
}

// Validate checks the sentinel defaults were replaced with real values
func (n NewEmailIdentity) Validate() error {
	err := validation.ValidateStruct(&n,
		validation.Field(&n.UserID, validation.Min(int64(0))),
		validation.Field(&n.Email, validation.Required, validation.Length(3, MaxEmailLength), is.EmailFormat),
		validation.Field(&n.Role, validation.By(func(value any) error {
			if r, ok := value.(EmailRole); !ok || !r.IsValid() {
				return fmt.Errorf("unknown role %v", value)
			}
			return nil
		})),
		validation.Field(&n.ActivationState, validation.By(func(value any) error {
			if s, ok := value.(ActivationState); !ok || !s.IsValid() {
				return fmt.Errorf("unknown activation state %v", value)
			}
			return nil
		})),
	)
	if err == nil {
		return nil
	}

	fields := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for field, fieldErr := range errs {
			fields[field] = fieldErr.Error()
		}
	} else {
		fields["error"] = err.Error()
	}

	return ErrInvalidEmailIdentity.WithMetadata(fields)
}

// EmailIdentity is a persisted email address of a user
type EmailIdentity struct {
	bun.BaseModel            `bun:"table:user_emails,alias:ue"`
	ID                       int64           `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UserID                   int64           `bun:"user_id,notnull" json:"user_id"`
	User                     *User           `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email                    *string         `bun:"email" json:"email,omitempty"`
	Role                     EmailRole       `bun:"role,notnull" json:"role"`
	ActivationState          ActivationState `bun:"activation_state,notnull" json:"activation_state"`
	ActivationToken          *string         `bun:"activation_token,unique" json:"-"`
	ActivationTokenExpiresAt *time.Time      `bun:"activation_token_expires_at" json:"activation_token_expires_at,omitempty"`
	ActivationTokenGrantedAt *time.Time      `bun:"activation_token_granted_at" json:"activation_token_granted_at,omitempty"`
	CreatedAt                time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt                time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

func (e *EmailIdentity) String() string {
	if e == nil {
		return "<EmailIdentity nil>"
	}
	return fmt.Sprintf("<EmailIdentity %s>", e.Role)
}

// IsPending reports whether the address still awaits activation
func (e *EmailIdentity) IsPending() bool {
	return e != nil && e.ActivationState == ActivationStatePending
}

// IsActive reports whether the address was activated
func (e *EmailIdentity) IsActive() bool {
	return e != nil && e.ActivationState == ActivationStateActive
}

// HasPendingVoucher reports whether a token and its expiry are stored.
func (e *EmailIdentity) HasPendingVoucher() bool {
	return e != nil && e.ActivationToken != nil && e.ActivationTokenExpiresAt != nil
}

// VoucherData is the signed voucher handed to the caller. It is never stored,
// only the secret it carries and its expiry are.
type VoucherData struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// ExpiresTime returns ExpiresAt as a UTC time
func (v VoucherData) ExpiresTime() time.Time {
	return time.Unix(v.ExpiresAt, 0).UTC()
}

// KeyMaterial is the signing input for a voucher purpose
type KeyMaterial struct {
	Issuer string
	KeyID  string
	Secret []byte
}
