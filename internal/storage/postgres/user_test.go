package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Файл интеграционных тестов для пакета postgres (репозиторий user.go):
// - поднимает реальный PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// - применяет миграции из ./migrations;
// - проверяет happy-path (создание и поиск по email/ID), уникальность email (CITEXT),
//   фильтр мягкого удаления, подтверждение e-mail и смену пароля с инкрементом эпохи;
// - валидирует сценарии отсутствия записей (storage.ErrNotFound) и обработку ошибок контекста.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// repoRootFromThisFile — определяет корень репозитория относительно текущего файла тестов.
// Используется для поиска SQL-миграций в каталоге ./migrations независимо от текущего рабочего каталога.
func repoRootFromThisFile() string {
	// internal/storage/postgres/... -> подняться на 3 уровня до корня.
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", ".."))
}

// readMigration — читает содержимое SQL-миграции из подкаталога ./migrations.
func readMigration(t *testing.T, name string) string {
	t.Helper()
	root := repoRootFromThisFile()
	path := filepath.Join(root, "migrations", name)
	b, err := os.ReadFile(path)
	require.NoError(t, err, "read migration %s", path)
	return string(b)
}

// startPostgres — поднимает временный экземпляр PostgreSQL через testcontainers-go,
// применяет обе миграции и возвращает инициализированное хранилище и функцию очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	// применяем миграции.
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, readMigration(t, "1_init_users.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, readMigration(t, "2_init_refresh_tokens.up.sql"))
	require.NoError(t, err)

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

// newTestUser — минимально валидный аккаунт для вставки.
func newTestUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		Timezone:     "UTC",
		Preferences:  map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestIntegration_SaveUser_And_GetByEmail_And_ByID_OK — happy-path:
// сохранение аккаунта и последующий поиск по email и ID; проверка CITEXT и таймстемпов.
func TestIntegration_SaveUser_And_GetByEmail_And_ByID_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newTestUser("User@Example.Com")
	require.NoError(t, st.SaveUser(context.Background(), u))

	gotByEmail, err := st.UserByEmail(context.Background(), strings.ToLower(u.Email))
	require.NoError(t, err)
	require.Equal(t, u.ID, gotByEmail.ID)
	require.False(t, gotByEmail.Active)
	require.False(t, gotByEmail.EmailVerified)
	require.Equal(t, int64(0), gotByEmail.SessionEpoch)
	require.WithinDuration(t, u.CreatedAt, gotByEmail.CreatedAt, time.Second)
	require.WithinDuration(t, u.UpdatedAt, gotByEmail.UpdatedAt, time.Second)

	gotByID, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotByID.ID)
}

// TestIntegration_SaveUser_UniqueEmail_CaseInsensitive_Violation — конфликт уникальности
// по email: CITEXT делает "a@b" и "A@B" одним значением.
func TestIntegration_SaveUser_UniqueEmail_CaseInsensitive_Violation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	first := newTestUser("dup@example.com")
	require.NoError(t, st.SaveUser(context.Background(), first))

	second := newTestUser("DUP@Example.com")
	err := st.SaveUser(context.Background(), second)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_UserLookup_NotFound — поиск несуществующих записей.
func TestIntegration_UserLookup_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.UserByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_SoftDeleted_ExcludedFromLookups — мягко удалённый аккаунт
// невидим для выборок и не обновляется.
func TestIntegration_SoftDeleted_ExcludedFromLookups(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newTestUser("gone@example.com")
	u.Deleted = true
	require.NoError(t, st.SaveUser(context.Background(), u))

	_, err := st.UserByEmail(context.Background(), u.Email)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(context.Background(), u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = st.MarkEmailVerified(context.Background(), u.ID, true)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = st.UpdatePasswordAndBumpEpoch(context.Background(), u.ID, "newhash")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_MarkEmailVerified — подтверждение e-mail с активацией и без.
func TestIntegration_MarkEmailVerified(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	withActivation := newTestUser("verify@example.com")
	require.NoError(t, st.SaveUser(context.Background(), withActivation))
	require.NoError(t, st.MarkEmailVerified(context.Background(), withActivation.ID, true))

	got, err := st.UserByID(context.Background(), withActivation.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	require.True(t, got.Active)

	withoutActivation := newTestUser("verify-only@example.com")
	require.NoError(t, st.SaveUser(context.Background(), withoutActivation))
	require.NoError(t, st.MarkEmailVerified(context.Background(), withoutActivation.ID, false))

	got, err = st.UserByID(context.Background(), withoutActivation.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	require.False(t, got.Active)

	// Повторное подтверждение не сбрасывает активность.
	require.NoError(t, st.MarkEmailVerified(context.Background(), withActivation.ID, false))
	got, err = st.UserByID(context.Background(), withActivation.ID)
	require.NoError(t, err)
	require.True(t, got.Active)

	require.ErrorIs(t,
		st.MarkEmailVerified(context.Background(), uuid.New(), true),
		storage.ErrNotFound,
	)
}

// TestIntegration_UpdatePasswordAndBumpEpoch — смена пароля инкрементирует эпоху
// при каждом вызове.
func TestIntegration_UpdatePasswordAndBumpEpoch(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newTestUser("reset@example.com")
	require.NoError(t, st.SaveUser(context.Background(), u))

	require.NoError(t, st.UpdatePasswordAndBumpEpoch(context.Background(), u.ID, "hash-2"))

	got, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, "hash-2", got.PasswordHash)
	require.Equal(t, int64(1), got.SessionEpoch)

	require.NoError(t, st.UpdatePasswordAndBumpEpoch(context.Background(), u.ID, "hash-3"))

	got, err = st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, "hash-3", got.PasswordHash)
	require.Equal(t, int64(2), got.SessionEpoch)

	require.ErrorIs(t,
		st.UpdatePasswordAndBumpEpoch(context.Background(), uuid.New(), "x"),
		storage.ErrNotFound,
	)
}

// TestIntegration_ContextErrors — отменённый контекст и истёкший deadline
// возвращаются как ошибки контекста, а не как ErrNotFound.
func TestIntegration_ContextErrors(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.UserByEmail(canceled, "any@example.com")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	time.Sleep(time.Millisecond)

	_, err = st.UserByID(expired, uuid.New())
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
