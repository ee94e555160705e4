package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/algecom/auth-service/internal/errors"
	logctx "github.com/algecom/auth-service/internal/pkg/log"
	"github.com/algecom/auth-service/internal/pkg/redact"
)

type resendVerificationRequest struct {
	Email string `json:"email"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// VerifyEmail — GET /auth/verify-email?token=...
// Подтверждает e-mail по ссылке из письма. Повторный переход по ссылке —
// успех: операция идемпотентна.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	if rawToken == "" {
		apierrors.WriteInvalidArgument(w, r)
		return
	}

	if err := h.svc.ConfirmEmail(r.Context(), rawToken); err != nil {
		// Наружу уходит единое сообщение; причина остаётся в логах.
		logctx.From(r.Context()).Warn("email_verification_failed",
			slog.String("token", redact.Token()),
			slog.String("err", err.Error()),
		)
		apierrors.WriteLinkError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Verified: true})
}

// ResendVerification — POST /auth/verify-email/resend.
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in resendVerificationRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteInvalidArgument(w, r)
		return
	}

	if err := h.svc.ResendVerification(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
