// email определяет контракт отправки служебных писем и реализацию
// для окружений без SMTP: письмо целиком уходит в структурный лог.
package email

import (
	"context"
	"log/slog"

	"github.com/algecom/auth-service/internal/pkg/redact"
)

// Message — служебное письмо аккаунту.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender отправляет служебные письма (подтверждение e-mail, сброс пароля).
// Ошибка отправки не должна ронять бизнес-операцию: вызывающая сторона
// решает сама, падать или логировать.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender пишет письма в лог вместо реальной доставки.
// Используется в local/dev окружениях и в тестах.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создаёт LogSender; при nil-логгере берётся slog.Default().
func NewLogSender(l *slog.Logger) *LogSender {
	if l == nil {
		l = slog.Default()
	}

	return &LogSender{log: l}
}

// Send логирует письмо. Адрес маскируется, тело письма содержит ссылку
// с токеном, поэтому пишем его только на уровне Debug.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.InfoContext(ctx, "email sent",
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
	)
	s.log.DebugContext(ctx, "email body",
		slog.String("to", redact.Email(msg.To)),
		slog.String("body", msg.Body),
	)

	return nil
}
