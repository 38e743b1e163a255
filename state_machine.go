package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	textCodeInvalidTransition = "INVALID_EMAIL_STATE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid email state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor    ActorRef
	Identity *EmailIdentity
	From     ActivationState
	To       ActivationState
	Meta     TransitionMetadata
	// Tx is the transaction the state update ran in, nil without a TxRunner
	Tx bun.IDB
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// EmailStateStore persists a guarded state change
type EmailStateStore interface {
	UpdateActivationState(ctx context.Context, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error)
	UpdateActivationStateTx(ctx context.Context, tx bun.IDB, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error)
}

// TxRunner runs f in a transaction. RepositoryManager and *bun.DB satisfy it.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// EmailStateMachine defines the activation lifecycle of email identities.
type EmailStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, identity *EmailIdentity, target ActivationState, opts ...TransitionOption) (*EmailIdentity, error)
	CanTransition(from, to ActivationState) bool
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*emailStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *emailStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *emailStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineTxRunner runs the state update and the after hooks in one
// transaction, a failing hook rolls the update back.
func WithStateMachineTxRunner(runner TxRunner) StateMachineOption {
	return func(sm *emailStateMachine) {
		sm.txRunner = runner
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *emailStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the state update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the state update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewEmailStateMachine returns the default implementation backed by store.
func NewEmailStateMachine(store EmailStateStore, opts ...StateMachineOption) EmailStateMachine {
	sm := &emailStateMachine{
		store: store,
		transitions: map[ActivationState]map[ActivationState]struct{}{
			ActivationStatePending: {
				ActivationStateActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type emailStateMachine struct {
	store        EmailStateStore
	transitions  map[ActivationState]map[ActivationState]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	txRunner     TxRunner
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (sm *emailStateMachine) Transition(ctx context.Context, actor ActorRef, identity *EmailIdentity, target ActivationState, opts ...TransitionOption) (*EmailIdentity, error) {
	if identity == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "identity is nil",
		})
	}

	from := identity.ActivationState
	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Actor:    actor,
		Identity: identity,
		From:     from,
		To:       target,
		Meta:     options.metadata,
	}

	if err := runHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	updated, err := sm.apply(ctx, tc, options.afterHooks)
	if err != nil {
		return nil, err
	}
	refresh(identity, updated)

	metadata := map[string]any{}
	if tc.Meta.Reason != "" {
		metadata["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		metadata[k] = v
	}

	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType: ActivityEventEmailTransition,
		Actor:     actor,
		UserID:    identity.UserID,
		EmailID:   identity.ID,
		FromState: from,
		ToState:   target,
		Metadata:  metadata,
	})

	return identity, nil
}

// apply persists the change and runs the after hooks. identity is only
// refreshed by the caller once everything succeeded.
func (sm *emailStateMachine) apply(ctx context.Context, tc TransitionContext, afterHooks []TransitionHook) (*EmailIdentity, error) {
	if sm.txRunner == nil {
		updated, err := sm.store.UpdateActivationState(ctx, tc.Identity, tc.From, tc.To)
		if err != nil {
			return nil, err
		}
		tc.Identity = updated
		if err := runHooks(ctx, afterHooks, tc); err != nil {
			return nil, err
		}
		return updated, nil
	}

	var updated *EmailIdentity
	err := sm.txRunner.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if updated, err = sm.store.UpdateActivationStateTx(ctx, tx, tc.Identity, tc.From, tc.To); err != nil {
			return err
		}
		tc.Identity = updated
		tc.Tx = tx
		return runHooks(ctx, afterHooks, tc)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (sm *emailStateMachine) CanTransition(from, to ActivationState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "transition hook failed")
		}
	}
	return nil
}
