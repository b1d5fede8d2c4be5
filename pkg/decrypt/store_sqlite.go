package decrypt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists requests in SQLite so an unanswered request survives
// a coordinator restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("decrypt: open sqlite %s: %w", path, err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS decryption_requests (
		request_id   TEXT PRIMARY KEY,
		batch_id     INTEGER NOT NULL,
		state_hash   TEXT NOT NULL,
		processed    INTEGER NOT NULL DEFAULT 0,
		requested_at TEXT NOT NULL,
		processed_at TEXT,
		plaintext    INTEGER
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, r *Request) error {
	query := `INSERT INTO decryption_requests
		(request_id, batch_id, state_hash, processed, requested_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.BatchID, r.StateHash, boolToInt(r.Processed),
		r.RequestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("decrypt: persist request %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, batch_id, state_hash, processed, requested_at, processed_at, plaintext
		FROM decryption_requests WHERE request_id = ?`, id)
	return scanRequest(row)
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string, plaintext uint64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decryption_requests
		SET processed = 1, plaintext = ?, processed_at = ?
		WHERE request_id = ? AND processed = 0`,
		int64(plaintext), at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("decrypt: mark processed %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownRequest
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		r           Request
		processed   int
		requestedAt string
		processedAt sql.NullString
		plaintext   sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.BatchID, &r.StateHash, &processed, &requestedAt, &processedAt, &plaintext)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decrypt: scan request: %w", err)
	}

	r.Processed = processed != 0
	if r.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
		return nil, fmt.Errorf("decrypt: parse requested_at: %w", err)
	}
	if processedAt.Valid && processedAt.String != "" {
		if r.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt.String); err != nil {
			return nil, fmt.Errorf("decrypt: parse processed_at: %w", err)
		}
	}
	if plaintext.Valid {
		r.Plaintext = uint64(plaintext.Int64)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
