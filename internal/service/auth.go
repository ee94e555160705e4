package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/algecom/auth-service/internal/token"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterUser регистрирует новый аккаунт в состоянии
// {active:false, email_verified:false} и отправляет письмо
// с ссылкой подтверждения. Токены при регистрации не выдаются:
// вход возможен только после подтверждения e-mail.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*models.User, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNameRequired)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:            uuid.New(),
		Email:         normEmail,
		PasswordHash:  hashedPassword,
		FirstName:     firstName,
		LastName:      lastName,
		Timezone:      "UTC",
		Preferences:   map[string]any{},
		Active:        false,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Письмо подтверждения: ошибка доставки логируется и не
	// откатывает регистрацию.
	s.sendVerificationEmail(ctx, user)

	return user, nil
}

// LoginUser выполняет вход по email+пароль и выпускает пару токенов.
// Порядок проверок: учётные данные -> активность -> подтверждение e-mail.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.Active {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccountInactive)
	}

	if !user.EmailVerified {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// RefreshToken выпускает новый access-токен по действующему refresh-токену.
// Refresh-токен не ротируется: он переиспользуется до явного отзыва
// или истечения срока.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	claims, err := s.codec.Parse(refreshToken, token.PurposeRefresh)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	user, err := s.validateRefreshState(ctx, claims)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	accessToken, err := s.codec.IssueAccess(user.ID, user.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, user.ID, nil
}

// RevokeToken отзывает refresh-токен (logout). Операция идемпотентна:
// повторный отзыв и отзыв неизвестного токена не являются ошибкой.
// Просроченные токены принимаются: цель операции — очистка.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	claims, err := s.codec.ParseAllowExpired(refreshToken, token.PurposeRefresh)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	_, err = s.storage.RevokeRefreshToken(ctx, claims.TokenID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.markCacheRevoked(ctx, claims.TokenID)

	return nil
}

// ValidateToken проверяет access-токен и возвращает идентификатор
// и e-mail аккаунта из claims, без обращения к хранилищу.
//
// Проверка намеренно stateless: отзыв сессий и удаление аккаунта
// действуют через refresh-путь, а уже выданный access-токен остаётся
// валиден до конца своего TTL. Окно ограничено коротким сроком жизни
// access-токена.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (uuid.UUID, string, error) {
	const op = "service.auth.ValidateToken"

	claims, err := s.codec.Parse(accessToken, token.PurposeAccess)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	return claims.UserID, claims.Email, nil
}

// mapTokenErr переводит ошибки кодека в сентинелы сервиса.
// Различие malformed/purpose-mismatch остаётся в обёрнутой цепочке ошибок
// и попадает в логи; наружу уходит единый ErrInvalidToken.
func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrPurposeMismatch):
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	default:
		return err
	}
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю:
// непустой и длина не меньше 8 рун.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов и
// регистрирует refresh-токен в хранилище под свежим jti.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const (
		op          = "service.auth.issueTokenPair"
		maxAttempts = 5
	)

	now := s.now().UTC()

	accessToken, err := s.codec.IssueAccess(user.ID, user.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		tokenID := uuid.New()

		refreshToken, err := s.codec.IssueRefresh(user.ID, tokenID, user.SessionEpoch, s.cfg.RefreshTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		record := &models.RefreshToken{
			ID:        tokenID,
			UserID:    user.ID,
			Epoch:     user.SessionEpoch,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
			Revoked:   false,
		}

		if err := s.storage.SaveRefreshToken(ctx, record); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Коллизия jti — пробуем сгенерировать заново.
				continue
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.cacheRefreshRecord(ctx, record)

		return &models.TokenPair{
			AccessToken:     accessToken,
			RefreshToken:    refreshToken,
			AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
		}, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// validateRefreshState проверяет состояние refresh-токена в хранилище
// и актуальность его эпохи относительно аккаунта.
func (s *Service) validateRefreshState(ctx context.Context, claims *token.Claims) (*models.User, error) {
	const op = "service.auth.validateRefreshState"

	record, err := s.lookupRefreshRecord(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Запись вычищена (отзыв с последующей уборкой) —
			// токен считается отозванным.
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if record.Revoked {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	user, err := s.storage.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountInactive)
	}

	// Эпоха токена старше текущей эпохи аккаунта: пароль менялся
	// после выпуска, все прежние сессии отозваны.
	if claims.Epoch < user.SessionEpoch {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return user, nil
}
