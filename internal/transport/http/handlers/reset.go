package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/algecom/auth-service/internal/errors"
	logctx "github.com/algecom/auth-service/internal/pkg/log"
	"github.com/algecom/auth-service/internal/pkg/redact"
)

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// RequestPasswordReset — POST /auth/password-reset.
// Для неизвестного e-mail возвращается 404: поведение оставлено как есть,
// см. комментарий к service.RequestPasswordReset.
func (h *Handlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in resetRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteInvalidArgument(w, r)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConfirmPasswordReset — POST /auth/password-reset/confirm.
// Успех отзывает все ранее выпущенные refresh-токены аккаунта.
func (h *Handlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in resetConfirmRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteInvalidArgument(w, r)
		return
	}

	if err := h.svc.ConfirmPasswordReset(r.Context(), in.Token, in.NewPassword); err != nil {
		// Наружу уходит единое сообщение; причина остаётся в логах.
		// Ни токен, ни новый пароль в лог не попадают.
		logctx.From(r.Context()).Warn("password_reset_confirm_failed",
			slog.String("token", redact.Token()),
			slog.String("new_password", redact.Password()),
			slog.String("err", err.Error()),
		)
		apierrors.WriteLinkError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
