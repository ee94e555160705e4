package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись о выпущенном refresh-токене.
// Сам токен (JWT) клиенту не пересохраняется; запись нужна только
// для точечного отзыва по идентификатору (jti) при logout.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Epoch     int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}
