package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver for migrations
	"github.com/pressly/goose/v3"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

// Postgres writes records through a pgx pool. Each upsert is its own
// statement, so no transaction spans more than one record.
type Postgres struct {
	pool *pgxpool.Pool
	uri  string
	stbl sq.StatementBuilderType
}

var _ Store = (*Postgres)(nil)

func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{
		pool: pool,
		uri:  connStr,
		stbl: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (p *Postgres) Initialize(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	db, err := sql.Open("pgx", p.uri)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	return migrate(ctx, goose.DialectPostgres, db, postgresMigrationDir)
}

func (p *Postgres) Upsert(ctx context.Context, r proof.AddressRecord) error {
	q, err := upsertQuery(p.stbl, r)
	if err != nil {
		return err
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("sql error: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
