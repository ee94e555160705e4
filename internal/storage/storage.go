package storage

import (
	"context"
	"errors"
	"time"

	"github.com/algecom/auth-service/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (аккаунт/refresh-токен).
	// Мягко удалённые аккаунты неотличимы от отсутствующих.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/id).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над аккаунтами.
// Все выборки неявно исключают записи с deleted = TRUE.
type UserStorage interface {
	// SaveUser создаёт новый аккаунт.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит аккаунт по нормализованному email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит аккаунт по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// MarkEmailVerified выставляет email_verified = TRUE; при activate
	// дополнительно активирует аккаунт (политика активации по подтверждению).
	MarkEmailVerified(ctx context.Context, id uuid.UUID, activate bool) error
	// UpdatePasswordAndBumpEpoch атомарно заменяет хэш пароля и
	// инкрементирует эпоху сессий: все ранее выпущенные refresh-токены
	// аккаунта становятся недействительными одной операцией.
	UpdatePasswordAndBumpEpoch(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// RefreshTokenStorage выполняет операции над записями refresh-токенов.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет запись о выпущенном refresh-токене.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByID находит запись по идентификатору токена (jti).
	RefreshTokenByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)
	// RevokeRefreshToken помечает токен отозванным.
	// Возвращает:
	//   (true, nil)  — токен был активен и отозван сейчас;
	//   (false, nil) — токен уже был отозван ранее;
	//   (false, ErrNotFound) — запись не найдена.
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteExpiredTokens удаляет все просроченные записи.
	// Возвращает количество удалённых строк.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
