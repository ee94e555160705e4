package service

import (
	"context"
	"testing"
	"time"

	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/storage"
	"github.com/algecom/auth-service/mocks"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// registerAndCaptureToken — хелпер: регистрирует аккаунт и извлекает
// verify-токен из отправленного письма.
func registerAndCaptureToken(t *testing.T, svc *Service, st *mocks.MockStorage, sender *fakeSender) (*models.User, string) {
	t.Helper()

	st.EXPECT().UserByEmail(gomock.Any(), "alice@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)

	user, err := svc.RegisterUser(context.Background(), "alice@example.com", "longenough1", "Alice", "Doe")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	return user, tokenFromLink(t, sender.sent[0].Body)
}

func TestConfirmEmail_OK_Activates(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	user, verifyToken := registerAndCaptureToken(t, svc, st, sender)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	// Политика activate_on_verify включена: подтверждение активирует аккаунт.
	st.EXPECT().MarkEmailVerified(gomock.Any(), user.ID, true).Return(nil)

	require.NoError(t, svc.ConfirmEmail(context.Background(), verifyToken))
}

func TestConfirmEmail_Idempotent(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	user, verifyToken := registerAndCaptureToken(t, svc, st, sender)

	verified := *user
	verified.EmailVerified = true
	verified.Active = true

	// Повторное подтверждение: MarkEmailVerified не вызывается.
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(&verified, nil)

	require.NoError(t, svc.ConfirmEmail(context.Background(), verifyToken))
}

func TestConfirmEmail_Expired(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	cur := time.Now().UTC()
	svc.SetClock(func() time.Time { return cur })

	_, verifyToken := registerAndCaptureToken(t, svc, st, sender)

	cur = cur.Add(25 * time.Hour)

	err := svc.ConfirmEmail(context.Background(), verifyToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestConfirmEmail_WrongPurposeAndGarbage(t *testing.T) {
	t.Parallel()

	svc, st, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()

	// Access-токен не подходит для подтверждения e-mail.
	pw := "longenough1"
	user := activeUser(t, "bob@example.com", pw)
	pair, _ := loginForRefresh(t, svc, st, user, pw)

	require.ErrorIs(t, svc.ConfirmEmail(ctx, pair.AccessToken), ErrInvalidToken)
	require.ErrorIs(t, svc.ConfirmEmail(ctx, "garbage"), ErrInvalidToken)
}

func TestConfirmEmail_AccountGone(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	user, verifyToken := registerAndCaptureToken(t, svc, st, sender)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(nil, storage.ErrNotFound)

	err := svc.ConfirmEmail(context.Background(), verifyToken)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResendVerification_OK(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{
		ID:    uuid.New(),
		Email: "pending@example.com",
	}

	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)

	require.NoError(t, svc.ResendVerification(context.Background(), user.Email))
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0].Body, "/auth/verify-email?token=")
}

func TestResendVerification_AlreadyVerified_NoEmail(t *testing.T) {
	t.Parallel()

	svc, st, sender, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{
		ID:            uuid.New(),
		Email:         "done@example.com",
		EmailVerified: true,
		Active:        true,
	}

	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)

	require.NoError(t, svc.ResendVerification(context.Background(), user.Email))
	require.Empty(t, sender.sent)
}

func TestResendVerification_UnknownEmail(t *testing.T) {
	t.Parallel()

	svc, st, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)

	err := svc.ResendVerification(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}
