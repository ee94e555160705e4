// service содержит бизнес-логику auth-сервиса:
// регистрацию и аутентификацию аккаунтов, жизненный цикл токенов
// (выпуск/проверка/отзыв), подтверждение e-mail и сброс пароля.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасном хранилище.
//   - Ошибки возвращаются сентинелами этого пакета и далее маппятся
//     транспортом на HTTP-статусы (см. комментарии к переменным ниже).
//   - Ошибки разбора токенов всегда доводятся до вызывающего и никогда
//     не ретраятся: испорченный или просроченный токен сам не починится.
package service

import (
	"errors"
	"time"

	"github.com/algecom/auth-service/internal/cache"
	"github.com/algecom/auth-service/internal/config"
	"github.com/algecom/auth-service/internal/email"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/algecom/auth-service/internal/token"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или аккаунт не найден.
	// Неизвестный e-mail и неверный пароль намеренно неразличимы.
	// Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive — аккаунт существует, но деактивирован.
	// Транспорт: HTTP 401.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrEmailNotVerified — e-mail аккаунта не подтверждён.
	// Транспорт: HTTP 401.
	ErrEmailNotVerified = errors.New("email is not verified")

	// ErrAccountNotFound — аккаунт с указанным e-mail не найден.
	// Используется запросом сброса пароля. Транспорт: HTTP 404.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidToken — токен некорректен по формату/подписи, выпущен
	// под другое назначение или отсутствует в хранилище.
	// Транспорт: HTTP 401 (для ссылок verify/reset — HTTP 400).
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк.
	// Транспорт: HTTP 401 (для ссылок verify/reset — HTTP 400).
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout или смена пароля)
	// и недействителен независимо от срока. Транспорт: HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrEmailTaken — e-mail уже занят другим аккаунтом.
	// Транспорт: HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль короче минимальной длины.
	// Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrNameRequired — имя или фамилия не заполнены при регистрации.
	// Транспорт: HTTP 400.
	ErrNameRequired = errors.New("first and last name are required")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать
	// уникальный идентификатор refresh-токена. Транспорт: HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	links   config.LinksConfig
	codec   *token.Codec
	mailer  email.Sender
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(st storage.Storage, cfg config.AuthConfig, links config.LinksConfig, mailer email.Sender) *Service {
	return &Service{
		storage: st,
		cfg:     cfg,
		links:   links,
		codec:   token.New(cfg.JWTSecret, cfg.Issuer, cfg.Audience, nil),
		mailer:  mailer,
		now:     time.Now,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}

// SetClock заменяет источник времени сервиса и кодека токенов.
// Нужен тестам истечения сроков; в проде не используется.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.codec = token.New(s.cfg.JWTSecret, s.cfg.Issuer, s.cfg.Audience, now)
}
