package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

// SQLite stores records in a single SQLite file. It holds one connection,
// so writes are serialized inside the store.
type SQLite struct {
	db   *sql.DB
	stbl sq.StatementBuilderType
}

var _ Store = (*SQLite)(nil)

// PrepareSQLiteDSN adds WAL journaling and a busy timeout unless uri already
// sets them.
func PrepareSQLiteDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}
		uri = uri[:i]
	}

	foundJournalMode, foundBusyTimeout := false, false
	for _, val := range query["_pragma"] {
		switch {
		case strings.HasPrefix(val, "journal_mode"):
			foundJournalMode = true
		case strings.HasPrefix(val, "busy_timeout"):
			foundBusyTimeout = true
		}
	}
	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(5000)")
	}

	return uri + "?" + query.Encode(), nil
}

// NewSQLite opens the database at uri (a path or file: URI).
func NewSQLite(uri string) (*SQLite, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("sqlite uri is required")
	}
	dsn, err := PrepareSQLiteDSN(uri)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLite{db: db, stbl: sq.StatementBuilder.RunWith(db)}, nil
}

func (s *SQLite) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return migrate(ctx, goose.DialectSQLite3, s.db, sqliteMigrationDir)
}

func (s *SQLite) Upsert(ctx context.Context, r proof.AddressRecord) error {
	q, err := upsertQuery(s.stbl, r)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx); err != nil {
		return fmt.Errorf("sql error: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
