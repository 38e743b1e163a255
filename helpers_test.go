package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	auth "github.com/eloquentlog/go-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testActivationKeys() auth.KeyMaterial {
	return auth.KeyMaterial{
		Issuer: "com.eloquentlog",
		KeyID:  "key_id-activation",
		Secret: []byte("secret-activation"),
	}
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)
	createSchema(t, bunDB)

	t.Cleanup(func() {
		_ = bunDB.Close()
	})
	return bunDB
}

// createSchema builds the tables from the bun models, the same columns the
// migrations test checks against migrations/sql.
func createSchema(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()

	_, err := db.NewCreateTable().
		Model((*auth.User)(nil)).
		Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewCreateTable().
		Model((*auth.EmailIdentity)(nil)).
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewCreateIndex().
		Model((*auth.EmailIdentity)(nil)).
		Index("user_emails_user_id_idx").
		Column("user_id").
		Exec(ctx)
	require.NoError(t, err)
}

func createUser(t *testing.T, db *bun.DB, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUsersRepository(db).Create(context.Background(), &auth.User{
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	return user
}

func observedLogger() (*auth.ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return auth.NewZapLogger(zap.New(core)), logs
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

func sequenceSecrets(values ...string) auth.SecretGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v, nil
	}
}
