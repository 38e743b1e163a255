// Package migrations holds the postgres schema of users and user_emails.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

func setup() error {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("postgres"); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}
	return nil
}

// Up applies all pending migrations
func Up(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return goerrors.New("nil database provided", goerrors.CategoryBadInput)
	}
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to apply migrations")
	}
	return nil
}

// Down rolls back the latest migration
func Down(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return goerrors.New("nil database provided", goerrors.CategoryBadInput)
	}
	if err := setup(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, dir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to roll back migration")
	}
	return nil
}

// FS returns the embedded migration files rooted at their directory
func FS() fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Files lists the embedded migration files
func Files() ([]string, error) {
	entries, err := files.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
