package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// sqliteDefaults are applied to every SQLite connection string unless the
// caller already set them. Foreign keys must be on for cascading deletes,
// and immediate transactions make concurrent writers queue on busy_timeout
// instead of failing on lock upgrade.
var sqliteDefaults = []struct{ key, value string }{
	{"_pragma", "foreign_keys(1)"},
	{"_pragma", "journal_mode(WAL)"},
	{"_pragma", "busy_timeout(5000)"},
	{"_txlock", "immediate"},
	{"_time_format", "sqlite"},
}

func Init(driver, connection string) (*sqlx.DB, error) {
	// SQLite: create data directory if needed
	if driver == "sqlite" {
		path, _, _ := strings.Cut(connection, "?")
		dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		connection = SQLiteDSN(connection)
	}

	db, err := sqlx.Connect(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// Connection pool configuration (good defaults for all drivers)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected", "driver", driver)

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// SQLiteDSN appends the connection defaults the store relies on.
func SQLiteDSN(connection string) string {
	var b strings.Builder
	b.WriteString(connection)
	sep := "?"
	if strings.Contains(connection, "?") {
		sep = "&"
	}
	for _, d := range sqliteDefaults {
		setting := d.key + "=" + d.value
		if d.key == "_pragma" {
			name, _, _ := strings.Cut(d.value, "(")
			if strings.Contains(connection, "_pragma="+name) {
				continue
			}
		} else if strings.Contains(connection, d.key+"=") {
			continue
		}
		b.WriteString(sep)
		b.WriteString(setting)
		sep = "&"
	}
	return b.String()
}

func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
