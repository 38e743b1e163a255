package migrations_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"reflect"
	"regexp"
	"strings"
	"testing"

	auth "github.com/eloquentlog/go-auth"
	"github.com/eloquentlog/go-auth/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func TestFiles(t *testing.T) {
	names, err := migrations.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_create_users.sql",
		"00002_create_user_emails.sql",
	}, names)
}

func TestUp_NilDB(t *testing.T) {
	err := migrations.Up(context.Background(), nil)
	assert.Error(t, err)
}

func readMigration(t *testing.T, name string) string {
	t.Helper()
	b, err := fs.ReadFile(migrations.FS(), name)
	require.NoError(t, err)
	// only the up section
	up, _, _ := strings.Cut(string(b), "-- +goose Down")
	return up
}

// createTableBody returns the column list of CREATE TABLE table
func createTableBody(t *testing.T, ddl, table string) string {
	t.Helper()
	re := regexp.MustCompile(`(?s)CREATE TABLE ` + table + ` \((.*?)\n\);`)
	m := re.FindStringSubmatch(ddl)
	require.Len(t, m, 2, "CREATE TABLE %s not found", table)
	return m[1]
}

func columnDefinitions(body string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if len(fields) < 2 {
			continue
		}
		out[fields[0]] = strings.Join(fields[1:], " ")
	}
	return out
}

func modelColumns(t *testing.T, model any) []string {
	t.Helper()
	sqldb, err := sql.Open("pgx", "postgres://localhost/schema-only")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	table := db.Table(reflect.TypeOf(model))
	names := make([]string, 0, len(table.Fields))
	for _, f := range table.Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestMigrationsMatchModels(t *testing.T) {
	tests := []struct {
		file  string
		table string
		model any
	}{
		{file: "00001_create_users.sql", table: "users", model: auth.User{}},
		{file: "00002_create_user_emails.sql", table: "user_emails", model: auth.EmailIdentity{}},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			columns := columnDefinitions(createTableBody(t, readMigration(t, tt.file), tt.table))
			for _, name := range modelColumns(t, tt.model) {
				assert.Contains(t, columns, name, "column %s.%s is read or written but not migrated", tt.table, name)
			}
		})
	}
}

func TestUserEmailsContract(t *testing.T) {
	ddl := readMigration(t, "00002_create_user_emails.sql")
	columns := columnDefinitions(createTableBody(t, ddl, "user_emails"))

	assert.Equal(t, "BIGSERIAL PRIMARY KEY", columns["id"])
	assert.Equal(t, "BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE", columns["user_id"])
	assert.Equal(t, fmt.Sprintf("VARCHAR(%d)", auth.MaxEmailLength), columns["email"])
	assert.True(t, strings.HasPrefix(columns["role"], "e_user_email_role NOT NULL"))
	assert.True(t, strings.HasPrefix(columns["activation_state"], "e_user_email_activation_state NOT NULL"))
	assert.Regexp(t, `^VARCHAR\(\d+\) UNIQUE$`, columns["activation_token"])
	assert.Equal(t, "TIMESTAMP", columns["activation_token_expires_at"])
	assert.Equal(t, "TIMESTAMP", columns["activation_token_granted_at"])
	assert.True(t, strings.HasPrefix(columns["created_at"], "TIMESTAMP NOT NULL"))
	assert.True(t, strings.HasPrefix(columns["updated_at"], "TIMESTAMP NOT NULL"))

	assert.Contains(t, ddl, fmt.Sprintf("CREATE TYPE e_user_email_role AS ENUM ('%s', '%s');",
		auth.EmailRoleGeneral, auth.EmailRolePrimary))
	assert.Contains(t, ddl, fmt.Sprintf("CREATE TYPE e_user_email_activation_state AS ENUM ('%s', '%s');",
		auth.ActivationStatePending, auth.ActivationStateActive))
	assert.Regexp(t, `CREATE INDEX \w+ ON user_emails \(user_id\);`, ddl)
}

func TestUsersContract(t *testing.T) {
	ddl := readMigration(t, "00001_create_users.sql")
	columns := columnDefinitions(createTableBody(t, ddl, "users"))

	assert.Equal(t, fmt.Sprintf("VARCHAR(%d) NOT NULL UNIQUE", auth.MaxEmailLength), columns["email"])
	assert.Equal(t, fmt.Sprintf("VARCHAR(%d) UNIQUE", auth.MaxUsernameLength), columns["username"])
	assert.Equal(t, fmt.Sprintf("VARCHAR(%d)", auth.MaxNameLength), columns["name"])
	assert.True(t, strings.HasPrefix(columns["state"], "e_user_state NOT NULL"))

	assert.Contains(t, ddl, fmt.Sprintf("CREATE TYPE e_user_state AS ENUM ('%s', '%s');",
		auth.UserStatePending, auth.UserStateActive))
}
