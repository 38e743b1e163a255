package auth

import (
	"context"
	"time"
)

// ActivationRedeemer consumes activation vouchers, moving an email identity
// from pending to active.
type ActivationRedeemer struct {
	emails   UserEmails
	users    Users
	keys     KeyMaterial
	encoder  ClaimsEncoder
	machine  EmailStateMachine
	now      func() time.Time
	metrics  *Metrics
	logger   Logger
	activity ActivitySink
}

type RedeemerOption func(*ActivationRedeemer)

// WithRedeemerUsers activates the owning account when its primary address is activated
func WithRedeemerUsers(users Users) RedeemerOption {
	return func(r *ActivationRedeemer) {
		r.users = users
	}
}

// WithRedeemerClock injects the clock used for expiry checks
func WithRedeemerClock(now func() time.Time) RedeemerOption {
	return func(r *ActivationRedeemer) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRedeemerMetrics(m *Metrics) RedeemerOption {
	return func(r *ActivationRedeemer) {
		r.metrics = m
	}
}

func WithRedeemerLogger(logger Logger) RedeemerOption {
	return func(r *ActivationRedeemer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRedeemerActivitySink(sink ActivitySink) RedeemerOption {
	return func(r *ActivationRedeemer) {
		r.activity = normalizeActivitySink(sink)
	}
}

// NewActivationRedeemer verifies vouchers signed with keys. The identity
// update and, with WithRedeemerUsers, the owner activation run in one
// transaction of repo.
func NewActivationRedeemer(repo RepositoryManager, keys KeyMaterial, opts ...RedeemerOption) *ActivationRedeemer {
	r := &ActivationRedeemer{
		emails:   repo.UserEmails(),
		keys:     keys,
		encoder:  ActivationClaims,
		now:      time.Now,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.encoder = r.encoder.WithClock(r.now)
	r.machine = NewEmailStateMachine(r.emails,
		WithStateMachineTxRunner(repo),
		WithStateMachineClock(r.now),
		WithStateMachineLogger(r.logger),
		WithStateMachineActivitySink(r.activity),
	)
	return r
}

// Redeem activates the identity whose stored secret the voucher carries.
// The voucher must verify against the configured key material, must not be
// expired, and must carry the secret most recently granted to a pending row.
func (r *ActivationRedeemer) Redeem(ctx context.Context, voucher string) (*EmailIdentity, error) {
	claims, err := r.encoder.DecodeWith(voucher, r.keys)
	if err != nil {
		return nil, err
	}

	identity, err := r.emails.GetByActivationToken(ctx, claims.Value())
	if err != nil {
		return nil, err
	}

	if !identity.IsPending() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": identity.ActivationState,
			"to":   ActivationStateActive,
		})
	}

	if identity.ActivationTokenExpiresAt == nil || !r.now().Before(*identity.ActivationTokenExpiresAt) {
		return nil, ErrVoucherExpired.WithMetadata(map[string]any{"id": identity.ID})
	}

	opts := []TransitionOption{
		WithTransitionReason("activation voucher redeemed"),
		WithTransitionMetadata(map[string]any{"jti": claims.ID}),
	}
	if r.users != nil && identity.Role == EmailRolePrimary {
		opts = append(opts, WithAfterTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			_, err := r.users.UpdateStateTx(ctx, tc.Tx, tc.Identity.UserID, UserStateActive)
			return err
		}))
	}

	activated, err := r.machine.Transition(ctx, ActorRef{ID: claims.ID, Type: "voucher"}, identity, ActivationStateActive, opts...)
	if err != nil {
		return nil, err
	}

	r.metrics.redeemed()
	recordActivity(ctx, r.activity, r.logger, r.now, ActivityEvent{
		EventType: ActivityEventEmailActivated,
		UserID:    activated.UserID,
		EmailID:   activated.ID,
		FromState: ActivationStatePending,
		ToState:   activated.ActivationState,
	})

	return activated, nil
}
