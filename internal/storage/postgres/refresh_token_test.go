package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Интеграционные тесты репозитория refresh_token.go.
// Инфраструктура (testcontainers, миграции) — в user_test.go.

// seedTokenOwner — создаёт аккаунт-владельца для записей токенов (FK).
func seedTokenOwner(t *testing.T, st *Storage) *models.User {
	t.Helper()
	u := newTestUser(uuid.NewString() + "@example.com")
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u
}

func newTestToken(userID uuid.UUID, ttl time.Duration) *models.RefreshToken {
	now := time.Now().UTC()
	return &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Epoch:     0,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// TestIntegration_SaveRefreshToken_And_GetByID_OK — happy-path: сохранение и выборка по jti.
func TestIntegration_SaveRefreshToken_And_GetByID_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	owner := seedTokenOwner(t, st)
	tok := newTestToken(owner.ID, time.Hour)
	require.NoError(t, st.SaveRefreshToken(context.Background(), tok))

	got, err := st.RefreshTokenByID(context.Background(), tok.ID)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)
	require.Equal(t, owner.ID, got.UserID)
	require.Equal(t, tok.Epoch, got.Epoch)
	require.False(t, got.Revoked)
	require.WithinDuration(t, tok.IssuedAt, got.IssuedAt, time.Second)
	require.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Second)
}

// TestIntegration_SaveRefreshToken_DuplicateJTI — повторная вставка того же jti.
func TestIntegration_SaveRefreshToken_DuplicateJTI(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	owner := seedTokenOwner(t, st)
	tok := newTestToken(owner.ID, time.Hour)
	require.NoError(t, st.SaveRefreshToken(context.Background(), tok))

	err := st.SaveRefreshToken(context.Background(), tok)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_RefreshTokenByID_NotFound — выборка несуществующего jti.
func TestIntegration_RefreshTokenByID_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.RefreshTokenByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RevokeRefreshToken — первый отзыв возвращает true,
// повторный — false без ошибки, отсутствующая запись — ErrNotFound.
func TestIntegration_RevokeRefreshToken(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	owner := seedTokenOwner(t, st)
	tok := newTestToken(owner.ID, time.Hour)
	require.NoError(t, st.SaveRefreshToken(context.Background(), tok))

	revoked, err := st.RevokeRefreshToken(context.Background(), tok.ID)
	require.NoError(t, err)
	require.True(t, revoked)

	got, err := st.RefreshTokenByID(context.Background(), tok.ID)
	require.NoError(t, err)
	require.True(t, got.Revoked)

	revoked, err = st.RevokeRefreshToken(context.Background(), tok.ID)
	require.NoError(t, err)
	require.False(t, revoked)

	revoked, err = st.RevokeRefreshToken(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.False(t, revoked)
}

// TestIntegration_DeleteExpiredTokens — удаляются только записи с истёкшим
// сроком; действующие остаются.
func TestIntegration_DeleteExpiredTokens(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	owner := seedTokenOwner(t, st)

	expired1 := newTestToken(owner.ID, -time.Hour)
	expired2 := newTestToken(owner.ID, -time.Minute)
	alive := newTestToken(owner.ID, time.Hour)

	for _, tok := range []*models.RefreshToken{expired1, expired2, alive} {
		require.NoError(t, st.SaveRefreshToken(context.Background(), tok))
	}

	deleted, err := st.DeleteExpiredTokens(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	_, err = st.RefreshTokenByID(context.Background(), expired1.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.RefreshTokenByID(context.Background(), alive.ID)
	require.NoError(t, err)

	// Повторный прогон — нечего удалять.
	deleted, err = st.DeleteExpiredTokens(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)
}

// TestIntegration_CascadeOnOwnerDelete — удаление владельца каскадно удаляет токены.
func TestIntegration_CascadeOnOwnerDelete(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	owner := seedTokenOwner(t, st)
	tok := newTestToken(owner.ID, time.Hour)
	require.NoError(t, st.SaveRefreshToken(context.Background(), tok))

	_, err := st.db.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, owner.ID)
	require.NoError(t, err)

	_, err = st.RefreshTokenByID(context.Background(), tok.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
