package repository_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeSeq atomic.Int64

// nextCode выдаёт уникальный код в пределах тестового прогона
func nextCode() string {
	return fmt.Sprintf("code%06d", codeSeq.Add(1))
}

func newLink(owner, code string, createdAt time.Time) *models.Link {
	return &models.Link{
		OwnerID:        owner,
		DestinationURL: "https://example.com/" + code,
		ShortCode:      code,
		CreatedAt:      createdAt,
		ExpiresAt:      createdAt.Add(24 * time.Hour),
	}
}

// runLinkRepositoryContract проверяет поведение, общее для всех хранилищ
func runLinkRepositoryContract(t *testing.T, repo repository.LinkRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("создание и чтение", func(t *testing.T) {
		owner := "owner-create"
		link := newLink(owner, nextCode(), now)

		require.NoError(t, repo.CreateIfCodeFree(ctx, link, 10))
		assert.NotZero(t, link.ID)
		assert.Zero(t, link.AccessCount)

		byCode, err := repo.GetByCode(ctx, link.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, link.ID, byCode.ID)
		assert.Equal(t, owner, byCode.OwnerID)
		assert.Equal(t, link.DestinationURL, byCode.DestinationURL)
		assert.True(t, link.CreatedAt.Equal(byCode.CreatedAt))
		assert.True(t, link.ExpiresAt.Equal(byCode.ExpiresAt))

		byID, err := repo.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, link.ShortCode, byID.ShortCode)

		exists, err := repo.CodeExists(ctx, link.ShortCode)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.CodeExists(ctx, "missing000")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.GetByCode(ctx, "missing000")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
		_, err = repo.GetByID(ctx, 1<<40)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("занятый код не расходует лимит", func(t *testing.T) {
		owner := "owner-dup"
		code := nextCode()
		require.NoError(t, repo.CreateIfCodeFree(ctx, newLink("owner-other", code, now), 10))

		err := repo.CreateIfCodeFree(ctx, newLink(owner, code, now), 1)
		assert.ErrorIs(t, err, repository.ErrCodeExists)

		// Транзакция откатилась, единственное место владельца свободно
		require.NoError(t, repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), 1))
	})

	t.Run("лимит владельца", func(t *testing.T) {
		owner := "owner-quota"
		require.NoError(t, repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), 2))
		require.NoError(t, repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), 2))

		err := repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), 2)
		assert.ErrorIs(t, err, repository.ErrQuotaExceeded)

		count, err := repo.CountByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("параллельные создания на границе лимита", func(t *testing.T) {
		owner := "owner-race"
		const limit, attempts = 3, 12

		var wg sync.WaitGroup
		var created atomic.Int64
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), limit)
				if err == nil {
					created.Add(1)
					return
				}
				assert.ErrorIs(t, err, repository.ErrQuotaExceeded)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(limit), created.Load())
		count, err := repo.CountByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, limit, count)
	})

	t.Run("параллельные создания одного кода", func(t *testing.T) {
		code := nextCode()

		var wg sync.WaitGroup
		var created atomic.Int64
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				err := repo.CreateIfCodeFree(ctx, newLink(fmt.Sprintf("owner-same-%d", id), code, now), 10)
				if err == nil {
					created.Add(1)
					return
				}
				assert.ErrorIs(t, err, repository.ErrCodeExists)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(1), created.Load())
	})

	t.Run("список владельца", func(t *testing.T) {
		owner := "owner-list"
		older := newLink(owner, nextCode(), now.Add(-2*time.Hour))
		newer := newLink(owner, nextCode(), now.Add(-time.Hour))
		sameTime := newLink(owner, nextCode(), now.Add(-time.Hour))
		for _, link := range []*models.Link{older, newer, sameTime} {
			require.NoError(t, repo.CreateIfCodeFree(ctx, link, 10))
		}
		require.NoError(t, repo.CreateIfCodeFree(ctx, newLink("owner-list-other", nextCode(), now), 10))

		links, err := repo.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, sameTime.ID, links[0].ID, "при равном времени новее тот, у кого больше id")
		assert.Equal(t, newer.ID, links[1].ID)
		assert.Equal(t, older.ID, links[2].ID)

		empty, err := repo.ListByOwner(ctx, "owner-nobody")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("изменение срока", func(t *testing.T) {
		owner := "owner-exp"
		link := newLink(owner, nextCode(), now)
		require.NoError(t, repo.CreateIfCodeFree(ctx, link, 10))

		// Прошедшая дата допустима, если она позже создания
		past := now.Add(time.Second)
		updated, err := repo.UpdateExpiration(ctx, link.ID, owner, past)
		require.NoError(t, err)
		assert.True(t, past.Equal(updated.ExpiresAt))

		_, err = repo.UpdateExpiration(ctx, link.ID, "owner-intruder", now.Add(time.Hour))
		assert.ErrorIs(t, err, repository.ErrNotOwner)

		_, err = repo.UpdateExpiration(ctx, link.ID, owner, now)
		assert.ErrorIs(t, err, repository.ErrExpirationBeforeCreation)

		_, err = repo.UpdateExpiration(ctx, 1<<40, owner, now.Add(time.Hour))
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		stored, err := repo.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.True(t, past.Equal(stored.ExpiresAt), "неудачные попытки не меняют запись")
	})

	t.Run("удаление", func(t *testing.T) {
		owner := "owner-delete"
		link := newLink(owner, nextCode(), now)
		require.NoError(t, repo.CreateIfCodeFree(ctx, link, 1))

		_, err := repo.DeleteByID(ctx, link.ID, "owner-intruder")
		assert.ErrorIs(t, err, repository.ErrNotOwner)

		deleted, err := repo.DeleteByID(ctx, link.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, link.ShortCode, deleted.ShortCode)

		_, err = repo.DeleteByID(ctx, link.ID, owner)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		_, err = repo.GetByCode(ctx, link.ShortCode)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		// Удаление освобождает место в лимите
		assert.NoError(t, repo.CreateIfCodeFree(ctx, newLink(owner, nextCode(), now), 1))
	})

	t.Run("счётчик переходов", func(t *testing.T) {
		link := newLink("owner-counter", nextCode(), now)
		require.NoError(t, repo.CreateIfCodeFree(ctx, link, 10))

		const increments = 40
		var wg sync.WaitGroup
		for i := 0; i < increments; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.IncrementAccessCount(ctx, link.ShortCode))
			}()
		}
		wg.Wait()

		stored, err := repo.GetByCode(ctx, link.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, int64(increments), stored.AccessCount)

		assert.ErrorIs(t, repo.IncrementAccessCount(ctx, "missing000"), repository.ErrLinkNotFound)
	})
}
