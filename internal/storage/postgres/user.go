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

// userColumns — единый список колонок для выборок аккаунта.
const userColumns = `
	id, email, password_hash, first_name, last_name, time_zone, preferences,
	active, email_verified, deleted, session_epoch, created_at, updated_at
`

// SaveUser создаёт новый аккаунт в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(
			id, email, password_hash, first_name, last_name, time_zone, preferences,
			active, email_verified, deleted, session_epoch, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Timezone,
		user.Preferences,
		user.Active,
		user.EmailVerified,
		user.Deleted,
		user.SessionEpoch,
		user.CreatedAt,
		user.UpdatedAt,
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

// UserByEmail находит аккаунт по email; мягко удалённые исключаются.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted = FALSE
	`

	user, err := s.scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит аккаунт по ID; мягко удалённые исключаются.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted = FALSE
	`

	user, err := s.scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// MarkEmailVerified выставляет email_verified; активация — по флагу политики.
// Повторное подтверждение остаётся no-op на уровне SQL (идемпотентность
// обеспечивает сервисный слой, здесь просто перезапись TRUE -> TRUE).
func (s *Storage) MarkEmailVerified(ctx context.Context, id uuid.UUID, activate bool) error {
	const op = "storage.postgres.MarkEmailVerified"

	query := `
		UPDATE users
		SET email_verified = TRUE,
		    active = active OR $2,
		    updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`

	cmdTag, err := s.db.Exec(ctx, query, id, activate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdatePasswordAndBumpEpoch заменяет хэш пароля и инкрементирует эпоху
// сессий одним UPDATE: конкурентный refresh не может увидеть новый хэш
// со старой эпохой.
func (s *Storage) UpdatePasswordAndBumpEpoch(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const op = "storage.postgres.UpdatePasswordAndBumpEpoch"

	query := `
		UPDATE users
		SET password_hash = $2,
		    session_epoch = session_epoch + 1,
		    updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`

	cmdTag, err := s.db.Exec(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// scanUser читает одну строку выборки userColumns.
func (s *Storage) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Timezone,
		&user.Preferences,
		&user.Active,
		&user.EmailVerified,
		&user.Deleted,
		&user.SessionEpoch,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &user, nil
}
