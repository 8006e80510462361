package service

import (
	"context"
	"errors"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"go.uber.org/zap"
)

// Resolver интерфейс горячего пути редиректа
type Resolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// ResolverOptions настройки резолвера
type ResolverOptions struct {
	CacheTTL      time.Duration
	RejectExpired bool // истёкшие ссылки отдают ErrNotFound
	Now           func() time.Time
}

// resolver реализация резолвера коротких кодов
type resolver struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	recorder  AccessRecorder
	opts      ResolverOptions
	logger    *zap.Logger
}

// NewResolver создаёт новый экземпляр резолвера
func NewResolver(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	recorder AccessRecorder,
	opts ResolverOptions,
	logger *zap.Logger,
) Resolver {
	if cacheRepo == nil {
		cacheRepo = repository.NewNoopCache()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resolver{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		recorder:  recorder,
		opts:      opts,
		logger:    logger,
	}
}

// Resolve возвращает адрес назначения и ставит в очередь инкремент счётчика.
// Квоты и владелец здесь не проверяются.
func (r *resolver) Resolve(ctx context.Context, code string) (string, error) {
	// Код неверного формата не может существовать, в хранилище не идём
	if ValidateCode(code) != nil {
		return "", ErrNotFound
	}

	destination, err := r.lookup(ctx, code)
	if err != nil {
		return "", err
	}

	// Ошибка учёта перехода не должна ломать редирект
	r.recorder.RecordAccess(code)

	return destination, nil
}

// lookup ищет ссылку сначала в кэше, затем в БД
func (r *resolver) lookup(ctx context.Context, code string) (string, error) {
	// Срок действия изменяемый и не кэшируется, поэтому в строгом режиме
	// всегда читаем хранилище
	if !r.opts.RejectExpired {
		cached, err := r.cacheRepo.Get(ctx, code)
		if err == nil {
			return cached.DestinationURL, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			r.logger.Warn("Failed to read redirect cache", zap.String("short_code", code), zap.Error(err))
		}
	}

	link, err := r.linkRepo.GetByCode(ctx, code)
	if err != nil {
		return "", translate(err)
	}

	if r.opts.RejectExpired && !IsActive(link, r.opts.Now()) {
		return "", ErrNotFound
	}

	if err := r.cacheRepo.Set(ctx, repository.NewCachedLink(link), r.opts.CacheTTL); err != nil {
		r.logger.Warn("Failed to cache link", zap.String("short_code", code), zap.Error(err))
	} else if !repository.IsNoopCache(r.cacheRepo) {
		r.dropIfRemoved(ctx, link)
	}

	return link.DestinationURL, nil
}

// dropIfRemoved убирает запись из кэша, если ссылку удалили между чтением и записью в кэш.
// Remove чистит кэш после коммита, поэтому удаление после этой проверки тоже не оставит записи.
func (r *resolver) dropIfRemoved(ctx context.Context, link *models.Link) {
	current, err := r.linkRepo.GetByCode(ctx, link.ShortCode)
	if err == nil && current.ID == link.ID {
		return
	}
	if err != nil && !errors.Is(err, repository.ErrLinkNotFound) {
		r.logger.Warn("Failed to recheck cached link", zap.String("short_code", link.ShortCode), zap.Error(err))
		return
	}
	if err := r.cacheRepo.Delete(ctx, link.ShortCode); err != nil {
		r.logger.Warn("Failed to invalidate cached link", zap.String("short_code", link.ShortCode), zap.Error(err))
	}
}
