package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/algecom/auth-service/internal/email"
	"github.com/algecom/auth-service/internal/pkg/log"
	"github.com/algecom/auth-service/internal/pkg/redact"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/algecom/auth-service/internal/token"
)

// RequestPasswordReset выпускает reset-токен и отправляет письмо
// со ссылкой сброса пароля.
//
// Для неизвестного e-mail возвращается ErrAccountNotFound: поведение
// раскрывает существование аккаунта. Зафиксировано как известная утечка,
// маскировка под единый успех — решение внешнего слоя.
func (s *Service) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	const op = "service.reset.RequestPasswordReset"

	lg := log.From(ctx)

	normEmail, err := validateEmail(rawEmail)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	resetToken, err := s.codec.Issue(user.ID, token.PurposeReset, s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	link := s.links.BaseURL + "/auth/password-reset/confirm?token=" + resetToken

	msg := email.Message{
		To:      user.Email,
		Subject: "Сброс пароля",
		Body: fmt.Sprintf(
			"Здравствуйте!\n\nДля смены пароля перейдите по ссылке:\n%s\n\nСсылка действительна %s. Если вы не запрашивали сброс, проигнорируйте это письмо.",
			link, s.cfg.ResetTokenTTL,
		),
	}

	// Выпуск токена состоялся; ошибка доставки не откатывает операцию.
	if err := s.mailer.Send(ctx, msg); err != nil {
		lg.Error("reset_email_send_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
	}

	return nil
}

// ConfirmPasswordReset устанавливает новый пароль по reset-токену.
// Вместе с заменой хэша атомарно инкрементируется эпоха сессий:
// все ранее выпущенные refresh-токены аккаунта становятся отозванными.
func (s *Service) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	const op = "service.reset.ConfirmPasswordReset"

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	claims, err := s.codec.Parse(rawToken, token.PurposeReset)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	hashedPassword, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePasswordAndBumpEpoch(ctx, claims.UserID, hashedPassword); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Токен валиден, но аккаунт удалён после его выпуска.
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
