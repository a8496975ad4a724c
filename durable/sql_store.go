package durable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLStore keeps the journal in a SQL table. The "sqlite" driver
// (modernc.org/sqlite) and the "pgx" driver (PostgreSQL) are registered.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQLStore opens driver at dsn and creates the journal table if needed.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(ctx, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

// NewSQLStore wraps an open database. The journal table must exist.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) migrate(ctx context.Context, driver string) error {
	blob := "BLOB"
	if driver == "pgx" || driver == "postgres" {
		blob = "BYTEA"
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS neuron_journal (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		payload `+blob+` NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`)
	return err
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, runID, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		s.db.Rebind(`SELECT payload FROM neuron_journal WHERE run_id = ? AND key = ?`), runID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, runID, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO neuron_journal (run_id, key, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`),
		runID, key, payload, time.Now().Unix())
	return err
}

// DeleteRun implements Store.
func (s *SQLStore) DeleteRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM neuron_journal WHERE run_id = ?`), runID)
	return err
}

// Runs returns the IDs of runs with journaled entries.
func (s *SQLStore) Runs(ctx context.Context) ([]string, error) {
	var runs []string
	err := s.db.SelectContext(ctx, &runs, `SELECT DISTINCT run_id FROM neuron_journal ORDER BY run_id`)
	return runs, err
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
