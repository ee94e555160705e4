package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User — модель аккаунта в системе.
//
// Флаги состояния:
//   - Active — аккаунт может аутентифицироваться;
//   - EmailVerified — владение e-mail подтверждено (выставляется ровно один раз);
//   - Deleted — мягкое удаление; такой аккаунт исключён из всех выборок
//     и недоступен ни по одному токену.
//
// SessionEpoch — счётчик «эпохи сессий»: refresh-токены, выпущенные до
// последнего инкремента, считаются отозванными.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	Timezone      string
	Preferences   map[string]any
	Active        bool
	EmailVerified bool
	Deleted       bool
	SessionEpoch  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName возвращает отображаемое имя пользователя.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
