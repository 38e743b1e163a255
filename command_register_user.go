package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// OnResponse receives the registered user and its pending primary identity
	OnResponse func(*RegisterUserResponse) `json:"-"`
}

type RegisterUserResponse struct {
	User     *User
	Identity *EmailIdentity
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(3, MaxEmailLength), is.EmailFormat),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&e.Username, validation.Length(0, MaxUsernameLength)),
		validation.Field(&e.Name, validation.Length(0, MaxNameLength)),
	)
	if err == nil {
		return nil
	}
	fields := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for k, v := range errs {
			fields[k] = v.Error()
		}
	}
	return ErrInvalidRegistration.WithMetadata(fields)
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	keys     KeyMaterial
	mailer   ActivationMailer
	logger   Logger
	timeout  time.Duration
	now      func() time.Time
	activity ActivitySink
	metrics  *Metrics
	gate     gate.FeatureGate
}

type RegisterUserOption func(*RegisterUserHandler)

func WithRegisterUserLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithRegisterUserTimeout(d time.Duration) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithRegisterUserActivitySink(sink ActivitySink) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.activity = normalizeActivitySink(sink)
	}
}

func WithRegisterUserMetrics(m *Metrics) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.metrics = m
	}
}

// WithRegisterUserFeatureGate refuses registrations while the signup feature is off
func WithRegisterUserFeatureGate(featureGate gate.FeatureGate) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.gate = featureGate
	}
}

func WithRegisterUserClock(now func() time.Time) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewRegisterUserHandler signs activation vouchers with keys and hands them
// to mailer once the registration committed. mailer may be nil.
func NewRegisterUserHandler(repo RepositoryManager, keys KeyMaterial, mailer ActivationMailer, opts ...RegisterUserOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:     repo,
		keys:     keys,
		mailer:   mailer,
		logger:   defLogger{},
		timeout:  time.Second * 10,
		now:      time.Now,
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := requireFeatureGate(ctx, h.gate, gate.FeatureUsersSignup, ErrSignupDisabled); err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		user     *User
		identity *EmailIdentity
		voucher  *VoucherData
	)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		record := &User{
			Email:        strings.TrimSpace(event.Email),
			PasswordHash: hash,
			Name:         optionalString(event.Name),
			Username:     optionalString(getUsername(event.Username, event.Email)),
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		identity = h.repo.UserEmails().InsertTx(ctx, tx, NewEmailIdentityFromUser(user))
		if identity == nil {
			return goerrors.New("could not save primary email", goerrors.CategoryOperation).
				WithMetadata(map[string]any{"user_id": user.ID})
		}

		voucher = h.repo.UserEmails().GrantActivationVoucherTx(ctx, tx, identity, h.keys)
		if voucher == nil {
			return goerrors.New("could not grant activation voucher", goerrors.CategoryOperation).
				WithMetadata(map[string]any{"email_id": identity.ID})
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	user.Emails = []*EmailIdentity{identity}

	h.metrics.inserted()
	h.metrics.granted()
	recordActivity(ctx, h.activity, h.logger, h.now, emailInsertedEvent(identity))
	recordActivity(ctx, h.activity, h.logger, h.now, voucherGrantedEvent(identity, voucher))
	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		UserID:    user.ID,
		EmailID:   identity.ID,
		ToState:   identity.ActivationState,
	})

	if h.mailer != nil {
		job := ActivationMailJob{
			UserID:    user.ID,
			EmailID:   identity.ID,
			Email:     user.Email,
			Voucher:   voucher.Value,
			ExpiresAt: voucher.ExpiresAt,
			QueuedAt:  h.now(),
		}
		// the user can ask for a new voucher, a failed enqueue does not undo
		// the registration
		if err := h.mailer.EnqueueActivation(ctx, job); err != nil {
			h.logger.Error("failed to enqueue activation mail for email %d: %v", identity.ID, err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user, Identity: identity})
	}

	return nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	if r := []rune(username); len(r) > MaxUsernameLength {
		username = string(r[:MaxUsernameLength])
	}

	return username
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
