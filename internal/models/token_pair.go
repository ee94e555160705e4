package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе.
//
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT для выпуска новых access-токенов;
//     при обновлении пары refresh-токен не ротируется;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
