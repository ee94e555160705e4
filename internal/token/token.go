// token реализует кодек подписанных токенов с закрытым набором назначений.
//
// Все четыре вида токенов (access, refresh, email-verify, password-reset) —
// это HS256 JWT с обязательным тегом назначения (claim "purpose"). Парсер
// принимает токен только под ожидаемое назначение: payload, выпущенный для
// одного потока, никогда не пройдёт валидацию в другом.
//
// Ошибки различимы на стороне вызывающего:
//   - ErrMalformed — подпись не сходится либо отсутствуют обязательные поля;
//   - ErrPurposeMismatch — назначение токена не совпало с ожидаемым;
//   - ErrExpired — срок действия истёк.
//
// Порядок проверок фиксирован: подпись/формат -> назначение -> срок.
// Благодаря этому access-токен, предъявленный как refresh, даёт
// ErrPurposeMismatch, а не ErrExpired.
//
// Часы инжектируются при создании кодека — проверка срока тестируема
// без ожиданий реального времени.
package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed — токен не разбирается, подпись не верифицируется
	// или отсутствуют обязательные для назначения поля.
	ErrMalformed = errors.New("malformed token")

	// ErrPurposeMismatch — токен выпущен под другое назначение.
	ErrPurposeMismatch = errors.New("token purpose mismatch")

	// ErrExpired — срок действия токена истёк.
	ErrExpired = errors.New("token expired")
)

// Purpose — назначение токена; закрытый набор из четырёх значений.
type Purpose string

const (
	PurposeAccess      Purpose = "session-access"
	PurposeRefresh     Purpose = "session-refresh"
	PurposeEmailVerify Purpose = "email-verify"
	PurposeReset       Purpose = "password-reset"
)

// valid сообщает, входит ли назначение в закрытый набор.
func (p Purpose) valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeEmailVerify, PurposeReset:
		return true
	}

	return false
}

// Claims — разобранное содержимое токена.
// TokenID и Epoch заполняются только для refresh-токенов.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Purpose   Purpose
	TokenID   uuid.UUID
	Epoch     int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims — представление полезной нагрузки в JWT.
type wireClaims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	Epoch   int64  `json:"epoch,omitempty"`
	jwt.RegisteredClaims
}

// Codec выпускает и проверяет токены с общим секретом процесса.
// Экземпляр иммутабелен и безопасен для конкурентного использования.
type Codec struct {
	secret   []byte
	issuer   string
	audience []string
	now      func() time.Time
}

// New создаёт кодек. now == nil означает time.Now.
func New(secret, issuer string, audience []string, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}

	return &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      now,
	}
}

// Issue выпускает токен без дополнительных полей (verify/reset).
func (c *Codec) Issue(userID uuid.UUID, purpose Purpose, ttl time.Duration) (string, error) {
	return c.sign(userID, "", uuid.Nil, 0, purpose, ttl)
}

// IssueAccess выпускает access-токен; e-mail кладётся в claims,
// чтобы вызывающие могли не ходить в хранилище при валидации.
func (c *Codec) IssueAccess(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	return c.sign(userID, email, uuid.Nil, 0, PurposeAccess, ttl)
}

// IssueRefresh выпускает refresh-токен с идентификатором отзыва (jti)
// и эпохой сессий аккаунта на момент выпуска.
func (c *Codec) IssueRefresh(userID, tokenID uuid.UUID, epoch int64, ttl time.Duration) (string, error) {
	return c.sign(userID, "", tokenID, epoch, PurposeRefresh, ttl)
}

// Parse проверяет подпись, назначение и срок действия токена.
func (c *Codec) Parse(raw string, expected Purpose) (*Claims, error) {
	const op = "token.Parse"

	claims, err := c.decode(raw, expected)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Момент exp включительно уже не валиден.
	if !c.now().UTC().Before(claims.ExpiresAt) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}

	return claims, nil
}

// ParseAllowExpired проверяет подпись и назначение, игнорируя срок действия.
// Используется только при отзыве refresh-токенов: просроченный токен
// допустимо отозвать, цель операции — очистка.
func (c *Codec) ParseAllowExpired(raw string, expected Purpose) (*Claims, error) {
	const op = "token.ParseAllowExpired"

	claims, err := c.decode(raw, expected)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

// sign формирует и подписывает токен.
func (c *Codec) sign(userID uuid.UUID, email string, tokenID uuid.UUID, epoch int64, purpose Purpose, ttl time.Duration) (string, error) {
	const op = "token.sign"

	if !purpose.valid() {
		return "", fmt.Errorf("%s: unknown purpose %q", op, purpose)
	}

	now := c.now().UTC()

	wc := wireClaims{
		UserID:  userID.String(),
		Email:   email,
		Purpose: string(purpose),
		Epoch:   epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if tokenID != uuid.Nil {
		wc.ID = tokenID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// decode разбирает токен и проверяет всё, кроме срока действия.
// Срок проверяется вызывающим: порядок «подпись -> назначение -> срок»
// требует отложить проверку exp до совпадения назначения.
func (c *Codec) decode(raw string, expected Purpose) (*Claims, error) {
	if !expected.valid() {
		return nil, fmt.Errorf("unknown expected purpose %q: %w", expected, ErrPurposeMismatch)
	}

	var wc wireClaims
	_, err := jwt.ParseWithClaims(raw, &wc,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrMalformed
			}

			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrMalformed
	}

	if c.issuer != "" && wc.Issuer != c.issuer {
		return nil, ErrMalformed
	}

	if len(c.audience) > 0 && !audienceOverlaps(wc.Audience, c.audience) {
		return nil, ErrMalformed
	}

	if wc.ExpiresAt == nil || wc.IssuedAt == nil {
		return nil, ErrMalformed
	}

	uid, err := uuid.Parse(wc.UserID)
	if err != nil {
		return nil, ErrMalformed
	}

	got := Purpose(wc.Purpose)
	if !got.valid() {
		return nil, ErrMalformed
	}

	if got != expected {
		return nil, ErrPurposeMismatch
	}

	claims := &Claims{
		UserID:    uid,
		Email:     wc.Email,
		Purpose:   got,
		Epoch:     wc.Epoch,
		IssuedAt:  wc.IssuedAt.Time.UTC(),
		ExpiresAt: wc.ExpiresAt.Time.UTC(),
	}

	if got == PurposeRefresh {
		tid, err := uuid.Parse(wc.ID)
		if err != nil {
			return nil, ErrMalformed
		}
		claims.TokenID = tid
	}

	return claims, nil
}

// audienceOverlaps проверяет, что хотя бы одна ожидаемая аудитория
// присутствует в claims токена.
func audienceOverlaps(got jwt.ClaimStrings, want []string) bool {
	for _, w := range want {
		if slices.Contains(got, w) {
			return true
		}
	}

	return false
}
