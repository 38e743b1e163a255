package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	auth "github.com/eloquentlog/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func pendingIdentity() *auth.EmailIdentity {
	token := "secret"
	return &auth.EmailIdentity{
		ID:              7,
		UserID:          3,
		Role:            auth.EmailRolePrimary,
		ActivationState: auth.ActivationStatePending,
		ActivationToken: &token,
	}
}

func TestEmailStateMachineTransitionToActive(t *testing.T) {
	store := &MockEmailStateStore{}
	sink := &capturingSink{}
	identity := pendingIdentity()

	store.On("UpdateActivationState", mock.Anything, identity, auth.ActivationStatePending, auth.ActivationStateActive).
		Return(&auth.EmailIdentity{ID: 7, UserID: 3, Role: auth.EmailRolePrimary, ActivationState: auth.ActivationStateActive}, nil).Once()

	sm := auth.NewEmailStateMachine(store,
		auth.WithStateMachineClock(fixedClock(testNow)),
		auth.WithStateMachineActivitySink(sink),
	)

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, identity, auth.ActivationStateActive,
		auth.WithTransitionReason("verified"),
		auth.WithTransitionMetadata(map[string]any{"source": "test"}),
	)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	assert.Nil(t, result.ActivationToken)
	store.AssertExpectations(t)

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, auth.ActivityEventEmailTransition, evt.EventType)
	assert.Equal(t, auth.ActivationStatePending, evt.FromState)
	assert.Equal(t, auth.ActivationStateActive, evt.ToState)
	assert.Equal(t, "verified", evt.Metadata["reason"])
	assert.Equal(t, "test", evt.Metadata["source"])
	assert.Equal(t, testNow, evt.OccurredAt)
}

func TestEmailStateMachineRejectsInvalidTransition(t *testing.T) {
	store := &MockEmailStateStore{}
	sm := auth.NewEmailStateMachine(store)

	identity := pendingIdentity()
	identity.ActivationState = auth.ActivationStateActive

	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, identity, auth.ActivationStatePending)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)

	_, err = sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, nil, auth.ActivationStateActive)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)

	store.AssertNotCalled(t, "UpdateActivationState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmailStateMachineCanTransition(t *testing.T) {
	sm := auth.NewEmailStateMachine(&MockEmailStateStore{})

	assert.True(t, sm.CanTransition(auth.ActivationStatePending, auth.ActivationStateActive))
	assert.False(t, sm.CanTransition(auth.ActivationStateActive, auth.ActivationStatePending))
	assert.False(t, sm.CanTransition(auth.ActivationStatePending, auth.ActivationStatePending))
	assert.False(t, sm.CanTransition(auth.ActivationStateActive, auth.ActivationStateActive))
}

func TestEmailStateMachineBeforeHookAborts(t *testing.T) {
	store := &MockEmailStateStore{}
	sm := auth.NewEmailStateMachine(store)

	hookErr := errors.New("nope")
	_, err := sm.Transition(context.Background(), auth.ActorRef{}, pendingIdentity(), auth.ActivationStateActive,
		auth.WithBeforeTransitionHook(func(ctx context.Context, tc auth.TransitionContext) error {
			return hookErr
		}),
	)
	assert.ErrorIs(t, err, hookErr)
	store.AssertNotCalled(t, "UpdateActivationState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmailStateMachineAfterHookSeesTransition(t *testing.T) {
	store := &MockEmailStateStore{}
	identity := pendingIdentity()

	store.On("UpdateActivationState", mock.Anything, identity, auth.ActivationStatePending, auth.ActivationStateActive).
		Return(&auth.EmailIdentity{ID: 7, UserID: 3, ActivationState: auth.ActivationStateActive}, nil).Once()

	var seen auth.TransitionContext
	sm := auth.NewEmailStateMachine(store)
	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "voucher"}, identity, auth.ActivationStateActive,
		auth.WithAfterTransitionHook(func(ctx context.Context, tc auth.TransitionContext) error {
			seen = tc
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, auth.ActivationStatePending, seen.From)
	assert.Equal(t, auth.ActivationStateActive, seen.To)
	assert.Equal(t, "voucher", seen.Actor.ID)
	assert.Equal(t, int64(3), seen.Identity.UserID)
}

func TestEmailStateMachineStoreError(t *testing.T) {
	store := &MockEmailStateStore{}
	identity := pendingIdentity()

	store.On("UpdateActivationState", mock.Anything, identity, auth.ActivationStatePending, auth.ActivationStateActive).
		Return(nil, auth.ErrVoucherNotFound).Once()

	sm := auth.NewEmailStateMachine(store)
	_, err := sm.Transition(context.Background(), auth.ActorRef{}, identity, auth.ActivationStateActive)
	assert.ErrorIs(t, err, auth.ErrVoucherNotFound)
	assert.True(t, identity.IsPending())
}

type recordingTxRunner struct {
	calls int
}

func (r *recordingTxRunner) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	r.calls++
	return f(ctx, bun.Tx{})
}

func TestEmailStateMachineTxRunnerAfterHookFailure(t *testing.T) {
	store := &MockEmailStateStore{}
	sink := &capturingSink{}
	runner := &recordingTxRunner{}
	identity := pendingIdentity()

	store.On("UpdateActivationStateTx", mock.Anything, mock.Anything, identity, auth.ActivationStatePending, auth.ActivationStateActive).
		Return(&auth.EmailIdentity{ID: 7, UserID: 3, ActivationState: auth.ActivationStateActive}, nil).Once()

	sm := auth.NewEmailStateMachine(store,
		auth.WithStateMachineTxRunner(runner),
		auth.WithStateMachineActivitySink(sink),
	)

	hookErr := errors.New("owner update failed")
	var seen auth.TransitionContext
	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "voucher"}, identity, auth.ActivationStateActive,
		auth.WithAfterTransitionHook(func(ctx context.Context, tc auth.TransitionContext) error {
			seen = tc
			return hookErr
		}),
	)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, 1, runner.calls)
	assert.NotNil(t, seen.Tx)
	assert.Equal(t, int64(3), seen.Identity.UserID)

	assert.True(t, identity.IsPending())
	require.NotNil(t, identity.ActivationToken)
	assert.Empty(t, sink.types())

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "UpdateActivationState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
