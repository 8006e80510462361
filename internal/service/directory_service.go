package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"go.uber.org/zap"
)

// Константы сервиса
const (
	defaultTTL             = 24 * time.Hour
	defaultCacheTTL        = time.Hour
	defaultMaxLinks        = 10
	defaultCodeLength      = 6
	defaultAllocationLimit = 20
	maxURLLength           = 2048
)

// DirectoryService интерфейс каталога коротких ссылок
type DirectoryService interface {
	Shorten(ctx context.Context, ownerID string, input *models.ShortenInput) (*models.Link, error)
	ListForOwner(ctx context.Context, ownerID string) (*models.LinkListing, error)
	GetLink(ctx context.Context, ownerID string, id int64) (*models.Link, error)
	SetExpiration(ctx context.Context, ownerID string, id int64, expiresAt time.Time) (*models.Link, error)
	Remove(ctx context.Context, ownerID string, id int64) error
}

// DirectoryOptions настройки каталога; нулевые значения заменяются значениями по умолчанию
type DirectoryOptions struct {
	MaxLinksPerOwner      int
	CodeLength            int
	MaxAllocationAttempts int
	DefaultTTL            time.Duration
	CacheTTL              time.Duration
	CodeSource            io.Reader // источник случайности генератора, nil - crypto/rand
	Now                   func() time.Time
}

// directoryService реализация каталога ссылок
type directoryService struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	generator *CodeGenerator
	quota     *QuotaEnforcer
	opts      DirectoryOptions
	logger    *zap.Logger
}

// NewDirectoryService создаёт новый экземпляр сервиса
func NewDirectoryService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	opts DirectoryOptions,
	logger *zap.Logger,
) DirectoryService {
	if opts.MaxLinksPerOwner <= 0 {
		opts.MaxLinksPerOwner = defaultMaxLinks
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = defaultCodeLength
	}
	if opts.MaxAllocationAttempts <= 0 {
		opts.MaxAllocationAttempts = defaultAllocationLimit
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultTTL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cacheRepo == nil {
		cacheRepo = repository.NewNoopCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &directoryService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		generator: NewCodeGenerator(linkRepo, opts.CodeLength, opts.MaxAllocationAttempts, opts.CodeSource),
		quota:     NewQuotaEnforcer(linkRepo, opts.MaxLinksPerOwner),
		opts:      opts,
		logger:    logger,
	}
}

// Shorten создаёт новую короткую ссылку владельца
func (s *directoryService) Shorten(ctx context.Context, ownerID string, input *models.ShortenInput) (*models.Link, error) {
	if ownerID == "" {
		return nil, ErrNotAuthorized
	}

	// Вся валидация до обращения к хранилищу
	destination, err := validateURL(input.DestinationURL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.opts.DefaultTTL)
	if input.ExpiresAt != nil {
		expiresAt = input.ExpiresAt.UTC().Truncate(time.Microsecond)
		if !expiresAt.After(now) {
			return nil, ErrInvalidDate
		}
	}

	var preferred *string
	if input.CustomCode != nil && *input.CustomCode != "" {
		if err := ValidateCode(*input.CustomCode); err != nil {
			return nil, err
		}
		preferred = input.CustomCode
	}

	if err := s.quota.CheckQuota(ctx, ownerID); err != nil {
		return nil, err
	}

	// Сгенерированный код мог занять параллельный запрос между проверкой и
	// вставкой, поэтому вставка повторяется с новым кодом
	for attempt := 0; attempt < s.generator.MaxAttempts(); attempt++ {
		code, err := s.generator.Allocate(ctx, preferred)
		if err != nil {
			return nil, err
		}

		link := &models.Link{
			OwnerID:        ownerID,
			DestinationURL: destination,
			ShortCode:      code,
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
		}

		err = s.linkRepo.CreateIfCodeFree(ctx, link, s.quota.Limit())
		if err == nil {
			s.logger.Info("Link created",
				zap.String("owner_id", ownerID),
				zap.String("short_code", link.ShortCode),
				zap.Int64("id", link.ID),
			)
			if err := s.cacheRepo.Set(ctx, repository.NewCachedLink(link), s.opts.CacheTTL); err != nil {
				// Кэш не обязателен для создания
				s.logger.Warn("Failed to cache link", zap.String("short_code", link.ShortCode), zap.Error(err))
			}
			return link, nil
		}

		if !errors.Is(err, repository.ErrCodeExists) || preferred != nil {
			return nil, translate(err)
		}
		s.logger.Debug("Short code lost insert race, retrying",
			zap.String("short_code", code),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, ErrAllocationExhausted
}

// ListForOwner возвращает ссылки владельца, новые первыми
func (s *directoryService) ListForOwner(ctx context.Context, ownerID string) (*models.LinkListing, error) {
	if ownerID == "" {
		return nil, ErrNotAuthorized
	}

	links, err := s.linkRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate(err)
	}

	now := s.now()
	active, expired := Partition(links, now)

	return &models.LinkListing{
		Links:       links,
		Active:      active,
		Expired:     expired,
		EvaluatedAt: now,
	}, nil
}

// GetLink возвращает одну ссылку владельца
func (s *directoryService) GetLink(ctx context.Context, ownerID string, id int64) (*models.Link, error) {
	if ownerID == "" {
		return nil, ErrNotAuthorized
	}

	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if link.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}

	return link, nil
}

// SetExpiration меняет срок действия; прошедшая дата допустима, но не раньше создания
func (s *directoryService) SetExpiration(ctx context.Context, ownerID string, id int64, expiresAt time.Time) (*models.Link, error) {
	if ownerID == "" {
		return nil, ErrNotAuthorized
	}
	if expiresAt.IsZero() {
		return nil, ErrInvalidDate
	}

	link, err := s.linkRepo.UpdateExpiration(ctx, id, ownerID, expiresAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("Link expiration updated",
		zap.String("owner_id", ownerID),
		zap.Int64("id", id),
		zap.Time("expires_at", link.ExpiresAt),
	)

	return link, nil
}

// Remove удаляет ссылку владельца
func (s *directoryService) Remove(ctx context.Context, ownerID string, id int64) error {
	if ownerID == "" {
		return ErrNotAuthorized
	}

	link, err := s.linkRepo.DeleteByID(ctx, id, ownerID)
	if err != nil {
		return translate(err)
	}

	// Удаляем кэш
	if err := s.cacheRepo.Delete(ctx, link.ShortCode); err != nil {
		s.logger.Warn("Failed to invalidate cached link", zap.String("short_code", link.ShortCode), zap.Error(err))
	}

	s.logger.Info("Link removed",
		zap.String("owner_id", ownerID),
		zap.String("short_code", link.ShortCode),
		zap.Int64("id", id),
	)

	return nil
}

func (s *directoryService) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Microsecond)
}

// validateURL проверяет, что адрес абсолютный http/https с хостом
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return "", ErrInvalidURL
	}

	// Адрес сохраняется как есть, без нормализации
	return raw, nil
}
