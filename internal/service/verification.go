package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/algecom/auth-service/internal/email"
	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/pkg/log"
	"github.com/algecom/auth-service/internal/pkg/redact"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/algecom/auth-service/internal/token"
)

// sendVerificationEmail выпускает verify-токен и отправляет письмо
// со ссылкой подтверждения. Fail-open: ошибка выпуска или доставки
// логируется и не прерывает вызвавшую операцию.
func (s *Service) sendVerificationEmail(ctx context.Context, user *models.User) {
	const op = "service.verification.sendVerificationEmail"

	lg := log.From(ctx)

	verifyToken, err := s.codec.Issue(user.ID, token.PurposeEmailVerify, s.cfg.VerifyTokenTTL)
	if err != nil {
		lg.Error("verify_token_issue_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return
	}

	link := s.links.BaseURL + "/auth/verify-email?token=" + verifyToken

	msg := email.Message{
		To:      user.Email,
		Subject: "Подтверждение e-mail",
		Body: fmt.Sprintf(
			"Здравствуйте!\n\nДля подтверждения адреса перейдите по ссылке:\n%s\n\nСсылка действительна %s.",
			link, s.cfg.VerifyTokenTTL,
		),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		lg.Error("verify_email_send_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
	}
}

// ResendVerification повторно отправляет письмо подтверждения.
// Для уже подтверждённого аккаунта операция завершается успехом
// без отправки письма.
func (s *Service) ResendVerification(ctx context.Context, rawEmail string) error {
	const op = "service.verification.ResendVerification"

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

	if user.EmailVerified {
		return nil
	}

	s.sendVerificationEmail(ctx, user)

	return nil
}

// ConfirmEmail подтверждает e-mail по verify-токену и, если политика
// активации включена, активирует аккаунт. Операция идемпотентна:
// повторное подтверждение тем же или новым токеном — успех.
func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) error {
	const op = "service.verification.ConfirmEmail"

	claims, err := s.codec.Parse(rawToken, token.PurposeEmailVerify)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	user, err := s.storage.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Токен валиден, но аккаунт удалён после его выпуска.
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if user.EmailVerified {
		return nil
	}

	if err := s.storage.MarkEmailVerified(ctx, user.ID, s.cfg.ActivateOnVerify); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
