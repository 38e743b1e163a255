package auth

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ErrUserNotFound is the error we return for non found users
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode("USER_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

type Users interface {
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)
	GetWithEmails(ctx context.Context, id int64) (*User, error)
	UpdateState(ctx context.Context, id int64, state UserState) (*User, error)
	UpdateStateTx(ctx context.Context, tx bun.IDB, id int64, state UserState) (*User, error)
}

type users struct {
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}
	prepareUserDefaults(record)

	_, err := tx.NewInsert().
		Model(record).
		ExcludeColumn("id", "created_at", "updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}
	return record, nil
}

func (a *users) GetByID(ctx context.Context, id int64) (*User, error) {
	return a.getBy(ctx, a.db, "id", id)
}

// GetByIdentifier resolves identifier as an id, an email or a username, in
// that order.
func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record, err := a.getBy(ctx, tx, opt.column, opt.value)
		if err != nil {
			if goerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		return record, nil
	}

	return nil, ErrUserNotFound.WithMetadata(map[string]any{
		"identifier": identifier,
	})
}

// GetWithEmails loads the user and all of its email identities
func (a *users) GetWithEmails(ctx context.Context, id int64) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Relation("Emails", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("ue.id ASC")
		}).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, userNotFoundOr(err, id)
	}
	return record, nil
}

func (a *users) UpdateState(ctx context.Context, id int64, state UserState) (*User, error) {
	return a.UpdateStateTx(ctx, a.db, id, state)
}

func (a *users) UpdateStateTx(ctx context.Context, tx bun.IDB, id int64, state UserState) (*User, error) {
	record := &User{ID: id, State: state}
	res, err := tx.NewUpdate().
		Model(record).
		Column("state").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err == nil {
		err = ensureAffected(res)
	}
	if err != nil {
		return nil, userNotFoundOr(err, id)
	}
	return record, nil
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, userNotFoundOr(err, value)
	}
	return record, nil
}

func userNotFoundOr(err error, identifier any) error {
	if goerrors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound.WithMetadata(map[string]any{"identifier": identifier})
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}
	if record.State == "" {
		record.State = UserStatePending
	}
	record.Email = strings.TrimSpace(record.Email)
}

type identifierOption struct {
	column string
	value  any
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		options = append(options, identifierOption{
			column: "id",
			value:  id,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}
