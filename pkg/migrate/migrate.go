package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location of the migrations, used by create.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DialectFor maps the configured DB driver onto a goose dialect.
func DialectFor(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), "sqlite") {
		return "sqlite3"
	}
	return "postgres"
}

// Source picks where goose reads migrations from. An empty Dir means the
// embedded set.
type Source struct {
	Dialect string
	Dir     string
}

func (s Source) prepare() (string, error) {
	dialect := s.Dialect
	if dialect == "" {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if s.Dir == "" {
		goose.SetBaseFS(Embedded())
		return ".", nil
	}
	goose.SetBaseFS(nil)
	return s.Dir, nil
}

// Run executes a goose command (up, down, status, redo, ...).
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	dir, err := src.prepare()
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, target string) error {
	version, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	dir, err := src.prepare()
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}
