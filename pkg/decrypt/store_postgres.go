package decrypt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists requests in PostgreSQL for multi-instance
// deployments sharing one request space.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS decryption_requests (
		request_id   TEXT PRIMARY KEY,
		batch_id     BIGINT NOT NULL,
		state_hash   TEXT NOT NULL,
		processed    BOOLEAN NOT NULL DEFAULT FALSE,
		requested_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ,
		plaintext    BIGINT
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, r *Request) error {
	query := `INSERT INTO decryption_requests
		(request_id, batch_id, state_hash, processed, requested_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.BatchID, r.StateHash, r.Processed, r.RequestedAt.UTC())
	if err != nil {
		return fmt.Errorf("decrypt: persist request %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, batch_id, state_hash, processed, requested_at, processed_at, plaintext
		FROM decryption_requests WHERE request_id = $1`, id)

	var (
		r           Request
		processedAt sql.NullTime
		plaintext   sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.BatchID, &r.StateHash, &r.Processed, &r.RequestedAt, &processedAt, &plaintext)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decrypt: scan request: %w", err)
	}
	if processedAt.Valid {
		r.ProcessedAt = processedAt.Time
	}
	if plaintext.Valid {
		r.Plaintext = uint64(plaintext.Int64)
	}
	return &r, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, plaintext uint64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decryption_requests
		SET processed = TRUE, plaintext = $1, processed_at = $2
		WHERE request_id = $3 AND processed = FALSE`,
		int64(plaintext), at.UTC(), id)
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
