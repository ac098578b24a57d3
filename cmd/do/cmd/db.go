package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/accounts/internal/db"
)

// dbFlags are shared by every command that opens the database.
type dbFlags struct {
	driver     string
	connection string
}

func (f *dbFlags) open() (*sqlx.DB, error) {
	database, err := db.Init(f.driver, f.connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// withDB opens the database, runs fn and closes it again.
func (f *dbFlags) withDB(ctx context.Context, fn func(ctx context.Context, database *sqlx.DB) error) error {
	database, err := f.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	return fn(ctx, database)
}
