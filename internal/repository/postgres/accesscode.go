package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// AccessCodeStore implements repository.AccessCodeStore on Postgres.
// Timestamps are stored as epoch milliseconds to match the wire contract
// (expiresAt is epoch ms or null).
type AccessCodeStore struct {
	pool *pgxpool.Pool
}

func NewAccessCodeStore(pool *pgxpool.Pool) *AccessCodeStore {
	return &AccessCodeStore{pool: pool}
}

func (s *AccessCodeStore) Create(ctx context.Context, code *models.AccessCode) error {
	query := `
		INSERT INTO access_codes (id, status, type, created_at, expires_at, name)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		code.ID, code.Status, code.Type, code.CreatedAt, code.ExpiresAt, code.Name)
	if err != nil {
		return fmt.Errorf("insert access code: %w", err)
	}
	return nil
}

func (s *AccessCodeStore) Get(ctx context.Context, id string) (*models.AccessCode, error) {
	query := `
		SELECT id, status, type, created_at, expires_at, name
		FROM access_codes
		WHERE id = $1`

	var code models.AccessCode
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&code.ID,
		&code.Status,
		&code.Type,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.Name,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access code: %w", err)
	}
	return &code, nil
}

func (s *AccessCodeStore) List(ctx context.Context) ([]models.AccessCode, error) {
	query := `
		SELECT id, status, type, created_at, expires_at, name
		FROM access_codes
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	defer rows.Close()

	codes := make([]models.AccessCode, 0)
	for rows.Next() {
		var code models.AccessCode
		if err := rows.Scan(
			&code.ID,
			&code.Status,
			&code.Type,
			&code.CreatedAt,
			&code.ExpiresAt,
			&code.Name,
		); err != nil {
			return nil, fmt.Errorf("scan access code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access codes: %w", err)
	}
	return codes, nil
}

func (s *AccessCodeStore) SetStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE access_codes SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set access code status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *AccessCodeStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM access_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete access code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *AccessCodeStore) DeleteExpired(ctx context.Context, nowMillis int64) ([]string, error) {
	query := `
		DELETE FROM access_codes
		WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING id`

	rows, err := s.pool.Query(ctx, query, nowMillis)
	if err != nil {
		return nil, fmt.Errorf("delete expired access codes: %w", err)
	}
	defer rows.Close()

	deleted := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted ids: %w", err)
	}
	return deleted, nil
}
