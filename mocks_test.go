package auth_test

import (
	"context"

	auth "github.com/eloquentlog/go-auth"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockEmailStateStore implements auth.EmailStateStore
type MockEmailStateStore struct {
	mock.Mock
}

func (m *MockEmailStateStore) UpdateActivationState(ctx context.Context, identity *auth.EmailIdentity, from, to auth.ActivationState) (*auth.EmailIdentity, error) {
	args := m.Called(ctx, identity, from, to)
	if v := args.Get(0); v != nil {
		return v.(*auth.EmailIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmailStateStore) UpdateActivationStateTx(ctx context.Context, tx bun.IDB, identity *auth.EmailIdentity, from, to auth.ActivationState) (*auth.EmailIdentity, error) {
	args := m.Called(ctx, tx, identity, from, to)
	if v := args.Get(0); v != nil {
		return v.(*auth.EmailIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

// failingUsers wraps a Users repository and fails state updates
type failingUsers struct {
	auth.Users
	err error
}

func (f failingUsers) UpdateState(ctx context.Context, id int64, state auth.UserState) (*auth.User, error) {
	return nil, f.err
}

func (f failingUsers) UpdateStateTx(ctx context.Context, tx bun.IDB, id int64, state auth.UserState) (*auth.User, error) {
	return nil, f.err
}

// MockActivationMailer implements auth.ActivationMailer
type MockActivationMailer struct {
	mock.Mock
}

func (m *MockActivationMailer) EnqueueActivation(ctx context.Context, job auth.ActivationMailJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
