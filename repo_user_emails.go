package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// UserEmails persists email identities and grants activation vouchers.
//
// Insert and GrantActivationVoucher each issue exactly one statement. They do
// not return errors: failures are logged and reported as a nil result, the
// caller resubmits.
type UserEmails interface {
	Insert(ctx context.Context, identity *NewEmailIdentity) *EmailIdentity
	InsertTx(ctx context.Context, tx bun.IDB, identity *NewEmailIdentity) *EmailIdentity

	GrantActivationVoucher(ctx context.Context, identity *EmailIdentity, keys KeyMaterial) *VoucherData
	GrantActivationVoucherTx(ctx context.Context, tx bun.IDB, identity *EmailIdentity, keys KeyMaterial) *VoucherData

	GetByID(ctx context.Context, id int64) (*EmailIdentity, error)
	GetByActivationToken(ctx context.Context, token string) (*EmailIdentity, error)
	ListByUserID(ctx context.Context, userID int64) ([]*EmailIdentity, error)

	UpdateActivationState(ctx context.Context, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error)
	UpdateActivationStateTx(ctx context.Context, tx bun.IDB, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error)
}

type userEmails struct {
	db           *bun.DB
	logger       Logger
	secrets      SecretGenerator
	encoder      ClaimsEncoder
	metrics      *Metrics
	activitySink ActivitySink
	now          func() time.Time
}

var _ UserEmails = (*userEmails)(nil)

type UserEmailsOption func(*userEmails)

// NewUserEmailsRepository returns a bun backed UserEmails
func NewUserEmailsRepository(db *bun.DB, opts ...UserEmailsOption) UserEmails {
	repo := &userEmails{
		db:           db,
		logger:       defLogger{},
		secrets:      DefaultSecretGenerator,
		encoder:      ActivationClaims,
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func WithUserEmailsLogger(logger Logger) UserEmailsOption {
	return func(r *userEmails) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUserEmailsSecretGenerator overrides how activation secrets are produced
func WithUserEmailsSecretGenerator(gen SecretGenerator) UserEmailsOption {
	return func(r *userEmails) {
		if gen != nil {
			r.secrets = gen
		}
	}
}

// WithUserEmailsEncoder overrides the activation claims encoder (TTL, clock)
func WithUserEmailsEncoder(encoder ClaimsEncoder) UserEmailsOption {
	return func(r *userEmails) {
		r.encoder = encoder
	}
}

func WithUserEmailsMetrics(m *Metrics) UserEmailsOption {
	return func(r *userEmails) {
		r.metrics = m
	}
}

func WithUserEmailsActivitySink(sink ActivitySink) UserEmailsOption {
	return func(r *userEmails) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

func WithUserEmailsClock(now func() time.Time) UserEmailsOption {
	return func(r *userEmails) {
		if now != nil {
			r.now = now
		}
	}
}

func (r *userEmails) Insert(ctx context.Context, identity *NewEmailIdentity) *EmailIdentity {
	record := r.InsertTx(ctx, r.db, identity)
	if record == nil {
		return nil
	}

	r.metrics.inserted()
	recordActivity(ctx, r.activitySink, r.logger, r.now, emailInsertedEvent(record))
	return record
}

// InsertTx saves a new row into user_emails.
//
// NOTE: role and activation_state are always written as primary and pending,
// whatever identity carries. The activation_token columns stay NULL until a
// voucher is granted.
//
// The row only exists once tx commits, so the inserted counter and activity
// event are left to the caller.
func (r *userEmails) InsertTx(ctx context.Context, tx bun.IDB, identity *NewEmailIdentity) *EmailIdentity {
	if identity == nil {
		r.logger.Error("err: %v", "new email identity is nil")
		r.metrics.writeFailed("insert")
		return nil
	}

	email := identity.Email
	record := &EmailIdentity{
		UserID:          identity.UserID,
		Email:           &email,
		Role:            EmailRolePrimary,
		ActivationState: ActivationStatePending,
	}

	q := tx.NewInsert().
		Model(record).
		Column("user_id", "email", "role", "activation_state").
		Returning("*")

	r.logger.Info("%s", q.String())

	if _, err := q.Exec(ctx); err != nil {
		r.logger.Error("err: %v", err)
		r.metrics.writeFailed("insert")
		return nil
	}

	return record
}

func (r *userEmails) GrantActivationVoucher(ctx context.Context, identity *EmailIdentity, keys KeyMaterial) *VoucherData {
	voucher := r.GrantActivationVoucherTx(ctx, r.db, identity, keys)
	if voucher == nil {
		return nil
	}

	r.metrics.granted()
	recordActivity(ctx, r.activitySink, r.logger, r.now, voucherGrantedEvent(identity, voucher))
	return voucher
}

// GrantActivationVoucherTx stores a fresh activation secret and its expiry on
// the row and returns the signed voucher carrying that secret. Any voucher
// granted earlier for the row stops matching. Like InsertTx it leaves the
// granted counter and activity event to the caller.
//
// activation_token_granted_at is not written.
func (r *userEmails) GrantActivationVoucherTx(ctx context.Context, tx bun.IDB, identity *EmailIdentity, keys KeyMaterial) *VoucherData {
	if identity == nil || identity.ID == 0 {
		r.logger.Error("err: %v", "email identity is not persisted")
		r.metrics.writeFailed("grant")
		return nil
	}

	token, err := r.secrets()
	if err != nil {
		r.logger.Error("err: %v", err)
		r.metrics.writeFailed("grant")
		return nil
	}

	voucher, err := r.encoder.EncodeWith(token, keys)
	if err != nil {
		r.logger.Error("err: %v", err)
		r.metrics.writeFailed("grant")
		return nil
	}

	expiresAt := voucher.ExpiresTime()
	record := &EmailIdentity{
		ID:                       identity.ID,
		ActivationToken:          &token,
		ActivationTokenExpiresAt: &expiresAt,
	}

	q := tx.NewUpdate().
		Model(record).
		Column("activation_token", "activation_token_expires_at").
		WherePK().
		Returning("*")

	r.logger.Info("%s", q.String())

	res, err := q.Exec(ctx)
	if err == nil {
		err = ensureAffected(res)
	}
	if err != nil {
		r.logger.Error("err: %v", err)
		r.metrics.writeFailed("grant")
		return nil
	}

	refresh(identity, record)

	return voucher
}

func (r *userEmails) GetByID(ctx context.Context, id int64) (*EmailIdentity, error) {
	record := &EmailIdentity{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrEmailIdentityNotFound, map[string]any{"id": id})
	}
	return record, nil
}

func (r *userEmails) GetByActivationToken(ctx context.Context, token string) (*EmailIdentity, error) {
	if token == "" {
		return nil, ErrVoucherNotFound
	}
	record := &EmailIdentity{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.activation_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrVoucherNotFound, nil)
	}
	return record, nil
}

func (r *userEmails) ListByUserID(ctx context.Context, userID int64) ([]*EmailIdentity, error) {
	records := []*EmailIdentity{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list email identities")
	}
	return records, nil
}

func (r *userEmails) UpdateActivationState(ctx context.Context, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error) {
	return r.UpdateActivationStateTx(ctx, r.db, identity, from, to)
}

// UpdateActivationStateTx moves the row from one state to another in a single
// statement guarded by the expected current state. When the identity holds a
// token the statement is also guarded by it, so a superseded voucher can not
// activate the row. Activation clears the token and its expiry together.
func (r *userEmails) UpdateActivationStateTx(ctx context.Context, tx bun.IDB, identity *EmailIdentity, from, to ActivationState) (*EmailIdentity, error) {
	if identity == nil || identity.ID == 0 {
		return nil, ErrEmailIdentityNotFound
	}

	record := &EmailIdentity{}
	q := tx.NewUpdate().
		Model(record).
		Set("activation_state = ?", to).
		Where("id = ?", identity.ID).
		Where("activation_state = ?", from).
		Returning("*")

	if to == ActivationStateActive {
		q = q.Set("activation_token = NULL").Set("activation_token_expires_at = NULL")
	}

	notFound := ErrEmailIdentityNotFound
	if identity.ActivationToken != nil {
		q = q.Where("activation_token = ?", *identity.ActivationToken)
		notFound = ErrVoucherNotFound
	}

	r.logger.Info("%s", q.String())

	res, err := q.Exec(ctx)
	if err == nil {
		err = ensureAffected(res)
	}
	if err != nil {
		// lost race or superseded voucher
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, notFound.WithMetadata(map[string]any{"id": identity.ID})
		}
		r.metrics.writeFailed("update_state")
		r.logger.Error("err: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update activation state")
	}

	return record, nil
}

func emailInsertedEvent(record *EmailIdentity) ActivityEvent {
	return ActivityEvent{
		EventType: ActivityEventEmailInserted,
		UserID:    record.UserID,
		EmailID:   record.ID,
		ToState:   record.ActivationState,
	}
}

func voucherGrantedEvent(identity *EmailIdentity, voucher *VoucherData) ActivityEvent {
	return ActivityEvent{
		EventType: ActivityEventVoucherGranted,
		UserID:    identity.UserID,
		EmailID:   identity.ID,
		Metadata: map[string]any{
			"expires_at": voucher.ExpiresAt,
		},
	}
}

func ensureAffected(res sql.Result) error {
	if res == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func notFoundOr(err error, notFound *goerrors.Error, metadata map[string]any) error {
	if goerrors.Is(err, sql.ErrNoRows) {
		if metadata == nil {
			return notFound
		}
		return notFound.WithMetadata(metadata)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email identity")
}

// refresh copies a RETURNING row into identity, keeping loaded relations.
func refresh(identity, row *EmailIdentity) {
	user := identity.User
	*identity = *row
	identity.User = user
}
