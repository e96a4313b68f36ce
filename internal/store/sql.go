package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

const (
	sqliteMigrationDir   = "migrations/sqlite"
	postgresMigrationDir = "migrations/postgres"
)

// migrate applies every pending migration in dir to db.
func migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string) error {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// upsertQuery is shared by the SQL backends; both accept ON CONFLICT ... excluded.
func upsertQuery(b sq.StatementBuilderType, r proof.AddressRecord) (sq.InsertBuilder, error) {
	if r.FID > math.MaxInt64 {
		return sq.InsertBuilder{}, fmt.Errorf("fid %d overflows a signed 64-bit column", r.FID)
	}
	return b.Insert(TableName).
		Columns("fid", "name", "owner").
		Values(int64(r.FID), r.Name, r.Owner).
		Suffix("ON CONFLICT (fid) DO UPDATE SET name = excluded.name, owner = excluded.owner"), nil
}
