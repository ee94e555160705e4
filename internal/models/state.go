package models

// AccountState — производное состояние аккаунта.
// Переходы выполняются только доменными операциями (регистрация,
// подтверждение e-mail, административное удаление); прямой мутации нет.
type AccountState string

const (
	// StatePending — аккаунт создан, e-mail не подтверждён.
	StatePending AccountState = "pending"
	// StateVerified — e-mail подтверждён, но аккаунт ещё не активирован.
	StateVerified AccountState = "verified"
	// StateActive — аккаунт может аутентифицироваться.
	StateActive AccountState = "active"
	// StateDeleted — терминальное состояние (мягкое удаление).
	StateDeleted AccountState = "deleted"
)

// State вычисляет состояние аккаунта по флагам.
func (u *User) State() AccountState {
	switch {
	case u.Deleted:
		return StateDeleted
	case u.EmailVerified && u.Active:
		return StateActive
	case u.EmailVerified:
		return StateVerified
	default:
		return StatePending
	}
}
