package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"github.com/SergeiKhy/shortlink-directory/internal/service"
	"github.com/SergeiKhy/shortlink-directory/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestResolver создаёт резолвер с запущенным счётчиком переходов
func setupTestResolver(t *testing.T, opts service.ResolverOptions) (service.Resolver, service.AccessRecorder, *mocks.MockLinkRepository, *mocks.MockCacheRepository) {
	t.Helper()

	linkRepo := mocks.NewMockLinkRepository()
	cacheRepo := mocks.NewMockCacheRepository()
	recorder := service.NewAccessRecorder(linkRepo, 4, 1000, zap.NewNop())
	recorder.Start()
	t.Cleanup(recorder.Stop)

	resolver := service.NewResolver(linkRepo, cacheRepo, recorder, opts, zap.NewNop())
	return resolver, recorder, linkRepo, cacheRepo
}

func seedLink(repo *mocks.MockLinkRepository, code string, createdAt, expiresAt time.Time) *models.Link {
	return repo.Insert(models.Link{
		OwnerID:        alice,
		DestinationURL: "https://example.com/" + code,
		ShortCode:      code,
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
	})
}

// TestResolver_Resolve проверяет редирект и учёт перехода
func TestResolver_Resolve(t *testing.T) {
	resolver, recorder, linkRepo, cacheRepo := setupTestResolver(t, service.ResolverOptions{})
	ctx := context.Background()

	now := time.Now().UTC()
	link := seedLink(linkRepo, "abc123", now, now.Add(time.Hour))

	destination, err := resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, link.DestinationURL, destination)

	_, err = cacheRepo.Get(ctx, "abc123")
	assert.NoError(t, err, "после чтения из БД ссылка должна попасть в кэш")

	recorder.Stop()
	stored, err := linkRepo.GetByCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.AccessCount)
}

// TestResolver_Resolve_NotFound проверяет неизвестный и некорректный код
func TestResolver_Resolve_NotFound(t *testing.T) {
	resolver, recorder, linkRepo, _ := setupTestResolver(t, service.ResolverOptions{})
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "nosuch1")
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, service.KindNotFound, service.KindOf(err))

	// Некорректный формат не доходит до хранилища
	linkRepo.Err = errors.New("store must not be touched")
	for _, code := range []string{"", "abc", "bad-code", "../etc/passwd"} {
		_, err := resolver.Resolve(ctx, code)
		assert.ErrorIs(t, err, service.ErrNotFound, "код: %q", code)
	}

	recorder.Stop()
	assert.Zero(t, recorder.Stats().Applied)
}

// TestResolver_Resolve_FromCache проверяет чтение из кэша
func TestResolver_Resolve_FromCache(t *testing.T) {
	resolver, _, _, cacheRepo := setupTestResolver(t, service.ResolverOptions{})
	ctx := context.Background()

	require.NoError(t, cacheRepo.Set(ctx, &repository.CachedLink{
		ID:             7,
		OwnerID:        alice,
		ShortCode:      "cached1",
		DestinationURL: "https://example.com/cached",
		CreatedAt:      time.Now(),
	}, time.Hour))

	destination, err := resolver.Resolve(ctx, "cached1")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cached", destination)
}

// TestResolver_Resolve_ExpiredStillResolves проверяет, что истёкшая ссылка по умолчанию работает
func TestResolver_Resolve_ExpiredStillResolves(t *testing.T) {
	resolver, _, linkRepo, _ := setupTestResolver(t, service.ResolverOptions{})

	created := time.Now().UTC().Add(-48 * time.Hour)
	link := seedLink(linkRepo, "expired1", created, created.Add(time.Hour))

	destination, err := resolver.Resolve(context.Background(), "expired1")

	require.NoError(t, err)
	assert.Equal(t, link.DestinationURL, destination)
}

// TestResolver_Resolve_RejectExpired проверяет строгий режим
func TestResolver_Resolve_RejectExpired(t *testing.T) {
	resolver, _, linkRepo, cacheRepo := setupTestResolver(t, service.ResolverOptions{RejectExpired: true})
	ctx := context.Background()

	now := time.Now().UTC()
	seedLink(linkRepo, "active01", now, now.Add(time.Hour))
	seedLink(linkRepo, "expired1", now.Add(-48*time.Hour), now.Add(-47*time.Hour))

	// Кэш в строгом режиме не используется
	require.NoError(t, cacheRepo.Set(ctx, &repository.CachedLink{ShortCode: "expired1", DestinationURL: "https://stale"}, time.Hour))

	_, err := resolver.Resolve(ctx, "active01")
	assert.NoError(t, err)

	_, err = resolver.Resolve(ctx, "expired1")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// TestResolver_ConcurrentResolves проверяет, что ни один переход не теряется
func TestResolver_ConcurrentResolves(t *testing.T) {
	resolver, recorder, linkRepo, _ := setupTestResolver(t, service.ResolverOptions{})
	ctx := context.Background()

	now := time.Now().UTC()
	seedLink(linkRepo, "popular1", now, now.Add(time.Hour))

	const resolves = 200
	var wg sync.WaitGroup
	for i := 0; i < resolves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Resolve(ctx, "popular1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Stop дожидается записи всех принятых событий
	recorder.Stop()

	stored, err := linkRepo.GetByCode(ctx, "popular1")
	require.NoError(t, err)
	assert.Equal(t, int64(resolves), stored.AccessCount)
	assert.Equal(t, int64(resolves), recorder.Stats().Applied)
}

// TestResolver_IncrementFailureDoesNotBreakRedirect проверяет изоляцию ошибок счётчика
func TestResolver_IncrementFailureDoesNotBreakRedirect(t *testing.T) {
	resolver, recorder, linkRepo, _ := setupTestResolver(t, service.ResolverOptions{})
	ctx := context.Background()

	now := time.Now().UTC()
	link := seedLink(linkRepo, "flaky01", now, now.Add(time.Hour))
	linkRepo.IncrementErr = errors.New("connection reset")

	destination, err := resolver.Resolve(ctx, "flaky01")
	require.NoError(t, err)
	assert.Equal(t, link.DestinationURL, destination)

	recorder.Stop()
	assert.Equal(t, int64(1), recorder.Stats().Failed)

	stored, err := linkRepo.GetByCode(ctx, "flaky01")
	require.NoError(t, err)
	assert.Zero(t, stored.AccessCount)
}

// TestAccessRecorder_StoppedDropsEvents проверяет, что после Stop события не блокируют вызывающего
func TestAccessRecorder_StoppedDropsEvents(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	recorder := service.NewAccessRecorder(linkRepo, 1, 1, zap.NewNop())
	recorder.Start()
	recorder.Stop()
	recorder.Stop()

	recorder.RecordAccess("abc123")

	stats := recorder.Stats()
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 1, stats.WorkerCount)
	assert.Equal(t, 1, stats.BufferSize)
}

// TestAccessRecorder_FullBufferDrops проверяет неблокирующую отправку при заполненном буфере
func TestAccessRecorder_FullBufferDrops(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	now := time.Now().UTC()
	seedLink(linkRepo, "abc123", now, now.Add(time.Hour))

	// Воркеры не запущены, поэтому буфер заполняется
	recorder := service.NewAccessRecorder(linkRepo, 1, 2, zap.NewNop())
	for i := 0; i < 5; i++ {
		recorder.RecordAccess("abc123")
	}

	stats := recorder.Stats()
	assert.Equal(t, 2, stats.BufferUsed)
	assert.Equal(t, int64(3), stats.Dropped)

	recorder.Start()
	recorder.Stop()

	stored, err := linkRepo.GetByCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.AccessCount)
}

// removingLinkRepository удаляет ссылку сразу после первого чтения по коду
type removingLinkRepository struct {
	*mocks.MockLinkRepository
	once sync.Once
}

func (r *removingLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	link, err := r.MockLinkRepository.GetByCode(ctx, code)
	if err == nil {
		r.once.Do(func() {
			_, _ = r.MockLinkRepository.DeleteByID(ctx, link.ID, link.OwnerID)
		})
	}
	return link, err
}

// TestResolver_RemoveDuringMissLeavesNoCache проверяет, что удаление между чтением и записью в кэш не оставляет запись
func TestResolver_RemoveDuringMissLeavesNoCache(t *testing.T) {
	linkRepo := &removingLinkRepository{MockLinkRepository: mocks.NewMockLinkRepository()}
	cacheRepo := mocks.NewMockCacheRepository()
	resolver := service.NewResolver(linkRepo, cacheRepo, service.NewAccessRecorder(linkRepo, 1, 10, zap.NewNop()), service.ResolverOptions{}, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC()
	link := seedLink(linkRepo.MockLinkRepository, "gone0001", now, now.Add(time.Hour))

	// Чтение произошло до удаления, поэтому этот редирект ещё отдаётся
	destination, err := resolver.Resolve(ctx, "gone0001")
	require.NoError(t, err)
	assert.Equal(t, link.DestinationURL, destination)

	_, err = cacheRepo.Get(ctx, "gone0001")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	_, err = resolver.Resolve(ctx, "gone0001")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
