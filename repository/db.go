package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Config is the subset of the persistence config we need to open a DB
type Config interface {
	GetDriver() string
	GetDSN() string
	GetMaxOpenConns() int
}

// Open connects to sqlite or postgres and wraps the pool with bun
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.GetDriver()))

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch driver {
	case "", DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite only supports one writer, in memory DBs also vanish per connection
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to enable sqlite foreign keys")
		}
	case DriverPostgres, "pgx":
		sqldb, err = sql.Open("pgx", cfg.GetDSN())
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres database")
		}
		if n := cfg.GetMaxOpenConns(); n > 0 {
			sqldb.SetMaxOpenConns(n)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, errors.New(fmt.Sprintf("unsupported database driver %q", driver), errors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": driver})
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "database ping failed")
	}

	return db, nil
}

// Migrate applies every pending embedded migration and returns the applied names
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(GetMigrationsFS()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to init migration tables")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to run migrations")
	}

	applied := make([]string, 0)
	if group == nil || group.IsZero() {
		return applied, nil
	}

	for _, m := range group.Migrations {
		applied = append(applied, m.Name)
	}
	return applied, nil
}
