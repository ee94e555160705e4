package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/algecom/auth-service/internal/cache"
	"github.com/algecom/auth-service/internal/models"
	"github.com/algecom/auth-service/internal/pkg/log"
	"github.com/algecom/auth-service/internal/storage"

	"github.com/google/uuid"
)

// Кэш refresh-токенов опционален и fail-open для доступности: любая
// ошибка Redis логируется, после чего сервис работает через БД.
// Для отзыва кэш fail-closed: попадание в кэш авторитетно только для
// отказа (rev=1). Запись с rev=0 могла пережить сбой записи при отзыве,
// поэтому принятие токена всегда подтверждается строкой в БД.

// lookupRefreshRecord ищет состояние refresh-токена. Кэш даёт быстрый
// отказ для уже отозванных токенов; во всех остальных случаях читаем БД
// с обратным заполнением кэша.
func (s *Service) lookupRefreshRecord(ctx context.Context, tokenID uuid.UUID) (*models.RefreshToken, error) {
	const op = "service.refresh_cache.lookupRefreshRecord"

	lg := log.From(ctx)

	if s.rcache != nil {
		entry, ok, err := s.rcache.Get(ctx, tokenID)
		if err != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if ok && entry.Revoked {
			return &models.RefreshToken{
				ID:        tokenID,
				UserID:    entry.UserID,
				Epoch:     entry.Epoch,
				ExpiresAt: entry.ExpiresAt,
				Revoked:   true,
			}, nil
		}
	}

	record, err := s.storage.RefreshTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cacheRefreshRecord(ctx, record)

	return record, nil
}

// cacheRefreshRecord кладёт состояние токена в кэш с остаточным TTL.
func (s *Service) cacheRefreshRecord(ctx context.Context, record *models.RefreshToken) {
	const op = "service.refresh_cache.cacheRefreshRecord"

	if s.rcache == nil {
		return
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return
	}

	entry := &cache.RefreshEntry{
		UserID:    record.UserID,
		Epoch:     record.Epoch,
		Revoked:   record.Revoked,
		ExpiresAt: record.ExpiresAt,
	}

	if err := s.rcache.Set(ctx, record.ID, entry, ttl); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}

// markCacheRevoked помечает токен отозванным в кэше. При сбое пометки
// ключ удаляется: промах кэша стоит одного чтения БД, а застрявшая
// запись rev=0 маскировала бы отзыв до истечения TTL ключа.
func (s *Service) markCacheRevoked(ctx context.Context, tokenID uuid.UUID) {
	const op = "service.refresh_cache.markCacheRevoked"

	if s.rcache == nil {
		return
	}

	err := s.rcache.MarkRevoked(ctx, tokenID)
	if err == nil {
		return
	}

	log.From(ctx).Warn("refresh_cache_revoke_failed",
		slog.String("op", op),
		slog.String("err", err.Error()),
	)

	if err := s.rcache.Del(ctx, tokenID); err != nil {
		log.From(ctx).Warn("refresh_cache_del_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}
