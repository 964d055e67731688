package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"fintechx-ops/core/utils"
)

//go:embed migrations_pg/*.sql
var migrationsPgFS embed.FS

//go:embed migrations_sqlite/*.sql
var migrationsSqliteFS embed.FS

// ApplyMigrations brings the schema up to date. Postgres is the production
// dialect; sqlite is reached only through the test-gated driver in NewDB.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	dialect, dir := "sqlite3", "migrations_sqlite"
	fsys := migrationsSqliteFS
	if isPG {
		dialect, dir = "postgres", "migrations_pg"
		fsys = migrationsPgFS
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)
	if logger != nil {
		logger.Printf("applying goose migrations (%s)", dialect)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("goose migrations applied")
	}
	return nil
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, err
	}
	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return false, nil
	}
	return true, nil
}
