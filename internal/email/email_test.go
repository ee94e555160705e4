package email

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogSender_Send_RedactsAddress(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := NewLogSender(l)
	err := s.Send(context.Background(), Message{
		To:      "alice@example.com",
		Subject: "Подтверждение e-mail",
		Body:    "https://example.com/auth/verify-email?token=secret-token",
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "al***@example.com")
	require.NotContains(t, out, "alice@example.com")
	// Тело со ссылкой уходит только на Debug, но в лог попадает.
	require.Contains(t, out, "secret-token")
}

func TestLogSender_Send_InfoOnly_HidesBody(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s := NewLogSender(l)
	err := s.Send(context.Background(), Message{
		To:   "alice@example.com",
		Body: "token=secret-token",
	})
	require.NoError(t, err)

	require.NotContains(t, buf.String(), "secret-token")
}

func TestNewLogSender_NilLoggerFallsBackToDefault(t *testing.T) {
	require.NotPanics(t, func() {
		s := NewLogSender(nil)
		_ = s.Send(context.Background(), Message{To: "a@b.c"})
	})
}
