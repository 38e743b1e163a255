package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	UserEmails() UserEmails
}

type mngr struct {
	db         *bun.DB
	users      Users
	userEmails UserEmails
}

// NewRepositoryManager wires the repositories over db. Options are applied
// to the UserEmails repository.
func NewRepositoryManager(db *bun.DB, opts ...UserEmailsOption) RepositoryManager {
	return &mngr{
		db:         db,
		users:      NewUsersRepository(db),
		userEmails: NewUserEmailsRepository(db, opts...),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.userEmails == nil {
		return errors.New("repository userEmails should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) UserEmails() UserEmails {
	return m.userEmails
}
