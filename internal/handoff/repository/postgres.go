package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"handoff_backend/internal/handoff/domain"
	"handoff_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, session_ref, customer_phone, customer_name, product_name, status, reason, claimed_by, created_at, claimed_at, completed_at, transcript`

// PostgresStore persists records in the handoff_records table. The
// claim guard is expressed as a conditional UPDATE so the database
// serializes concurrent claims on the same row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a record store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// Put inserts or overwrites the record keyed by its ID.
func (s *PostgresStore) Put(ctx context.Context, rec domain.CallHandoffRecord) error {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode transcript", err)
	}

	query := `
		INSERT INTO handoff_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			session_ref = EXCLUDED.session_ref,
			customer_phone = EXCLUDED.customer_phone,
			customer_name = EXCLUDED.customer_name,
			product_name = EXCLUDED.product_name,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			claimed_by = EXCLUDED.claimed_by,
			created_at = EXCLUDED.created_at,
			claimed_at = EXCLUDED.claimed_at,
			completed_at = EXCLUDED.completed_at,
			transcript = EXCLUDED.transcript`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.SessionRef, rec.CustomerPhone, rec.CustomerName, rec.ProductName,
		string(rec.Status), rec.Reason, rec.ClaimedBy, rec.CreatedAt, rec.ClaimedAt,
		rec.CompletedAt, transcript,
	)
	if err != nil {
		return fmt.Errorf("put handoff record: %w", err)
	}
	return nil
}

// Get returns the record or apperr.NotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (domain.CallHandoffRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM handoff_records WHERE id = $1`
	return s.scanRow(s.pool.QueryRow(ctx, query, id), "get handoff record")
}

// List returns records matching status ordered by creation time.
func (s *PostgresStore) List(ctx context.Context, status domain.Status) ([]domain.CallHandoffRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM handoff_records`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list handoff records: %w", err)
	}
	defer rows.Close()

	var results []domain.CallHandoffRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list handoff records: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list handoff records: %w", err)
	}
	return results, nil
}

// Delete removes the record. Absent IDs are a no-op.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM handoff_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete handoff record: %w", err)
	}
	return nil
}

// Claim is a single conditional UPDATE; the status predicate makes the
// check and the flip one statement, so losers of a concurrent claim see
// zero affected rows.
func (s *PostgresStore) Claim(ctx context.Context, id, operator string, at time.Time) (domain.CallHandoffRecord, error) {
	query := `
		UPDATE handoff_records
		SET status = $2, claimed_by = $3, claimed_at = $4
		WHERE id = $1 AND status = $5
		RETURNING ` + recordColumns

	rec, err := s.scanRow(
		s.pool.QueryRow(ctx, query, id, string(domain.StatusActive), operator, at, string(domain.StatusRequested)),
		"claim handoff record",
	)
	if err == nil {
		return rec, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return domain.CallHandoffRecord{}, err
	}

	// Missing row or failed guard; look again to tell the two apart.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return domain.CallHandoffRecord{}, getErr
	}
	return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
}

// SetStatus unconditionally moves the record to the given status.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	query := `
		UPDATE handoff_records
		SET status = $2,
			completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END
		WHERE id = $1
		RETURNING ` + recordColumns

	return s.scanRow(s.pool.QueryRow(ctx, query, id, string(to), at), "set handoff status")
}

// SetStatusIf moves the record to the given status only from the
// expected current status.
func (s *PostgresStore) SetStatusIf(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	query := `
		UPDATE handoff_records
		SET status = $2,
			completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END
		WHERE id = $1 AND status = $4
		RETURNING ` + recordColumns

	rec, err := s.scanRow(s.pool.QueryRow(ctx, query, id, string(to), at, string(from)), "set handoff status")
	if err == nil {
		return rec, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return domain.CallHandoffRecord{}, err
	}

	if _, getErr := s.Get(ctx, id); getErr != nil {
		return domain.CallHandoffRecord{}, getErr
	}
	return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanRow(row rowScanner, op string) (domain.CallHandoffRecord, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
		}
		return domain.CallHandoffRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func scanRecord(row rowScanner) (domain.CallHandoffRecord, error) {
	var rec domain.CallHandoffRecord
	var status string
	var transcript []byte

	err := row.Scan(
		&rec.ID, &rec.SessionRef, &rec.CustomerPhone, &rec.CustomerName, &rec.ProductName,
		&status, &rec.Reason, &rec.ClaimedBy, &rec.CreatedAt, &rec.ClaimedAt,
		&rec.CompletedAt, &transcript,
	)
	if err != nil {
		return domain.CallHandoffRecord{}, err
	}

	rec.Status = domain.Status(status)
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
			return domain.CallHandoffRecord{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	return rec, nil
}
