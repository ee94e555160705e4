package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SaveRefreshToken сохраняет запись о выданном refresh-токене (ключ — jti).
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
		INSERT INTO refresh_tokens(id, user_id, epoch, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Epoch,
		token.IssuedAt,
		token.ExpiresAt,
		token.Revoked,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByID находит запись токена по jti.
func (s *Storage) RefreshTokenByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByID"

	query := `
		SELECT id, user_id, epoch, issued_at, expires_at, revoked
		FROM refresh_tokens
		WHERE id = $1
	`

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.Epoch,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// RevokeRefreshToken помечает токен отозванным.
// Возвращает (true, nil), если токен отозван этим вызовом;
// (false, nil) — если был отозван ранее; (false, ErrNotFound) — если записи нет.
func (s *Storage) RevokeRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE id = $1 AND revoked = FALSE
	`

	cmdTag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() > 0 {
		return true, nil
	}

	// Строка не изменилась: либо уже отозван, либо записи нет.
	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return false, nil
}

// DeleteExpiredTokens удаляет записи токенов с истёкшим сроком.
// Возвращает количество удалённых строк.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	cmdTag, err := s.db.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
