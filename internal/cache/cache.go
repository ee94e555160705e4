package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshEntry описывает состояние refresh-токена, которое мы храним
// в Redis по jti. Эпоха нужна для массового отзыва: запись со старой
// эпохой недействительна, даже если rev=0.
type RefreshEntry struct {
	UserID    uuid.UUID
	Epoch     int64
	Revoked   bool
	ExpiresAt time.Time
}

// RefreshCache — минимальный контракт кэша состояния refresh-токенов.
// Кэш опционален: при его отсутствии сервис ходит в БД напрямую.
type RefreshCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, tokenID uuid.UUID) (*RefreshEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now).
	Set(ctx context.Context, tokenID uuid.UUID, e *RefreshEntry, ttl time.Duration) error
	// MarkRevoked помечает ключ revoked=true, сохраняя остаточный TTL.
	MarkRevoked(ctx context.Context, tokenID uuid.UUID) error
	// Del удаляет ключ. Используется как запасной ход при сбое MarkRevoked:
	// отсутствие ключа безопасно, тогда как застрявший rev=0 — нет.
	Del(ctx context.Context, tokenID uuid.UUID) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:rt:".
func NewRedisCache(redisURL, prefix string) (RefreshCache, error) {
	if prefix == "" {
		prefix = "auth:rt:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(tokenID uuid.UUID) string { return c.prefix + tokenID.String() }

// Храним как Redis Hash с полями: uid, epoch, rev (0/1), exp (unix).
func (c *redisCache) Get(ctx context.Context, tokenID uuid.UUID) (*RefreshEntry, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(tokenID)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, false, err
	}

	epoch, err := strconv.ParseInt(m["epoch"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	rev := m["rev"] == "1"

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	return &RefreshEntry{
		UserID:    uid,
		Epoch:     epoch,
		Revoked:   rev,
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, tokenID uuid.UUID, e *RefreshEntry, ttl time.Duration) error {
	kv := map[string]string{
		"uid":   e.UserID.String(),
		"epoch": strconv.FormatInt(e.Epoch, 10),
		"rev":   boolTo01(e.Revoked),
		"exp":   strconv.FormatInt(e.ExpiresAt.Unix(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(tokenID), kv)
	pipe.Expire(ctx, c.key(tokenID), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) MarkRevoked(ctx context.Context, tokenID uuid.UUID) error {
	return c.rdb.HSet(ctx, c.key(tokenID), "rev", "1").Err()
}

func (c *redisCache) Del(ctx context.Context, tokenID uuid.UUID) error {
	return c.rdb.Del(ctx, c.key(tokenID)).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
