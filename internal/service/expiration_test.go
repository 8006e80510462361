package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"github.com/SergeiKhy/shortlink-directory/internal/service"
	"github.com/SergeiKhy/shortlink-directory/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsActive(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	link := &models.Link{ExpiresAt: expiresAt}

	assert.True(t, service.IsActive(link, expiresAt.Add(-time.Nanosecond)))
	assert.False(t, service.IsActive(link, expiresAt), "в момент истечения ссылка уже не действует")
	assert.False(t, service.IsActive(link, expiresAt.Add(time.Hour)))
}

func TestPartition(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	links := []models.Link{
		{ID: 1, ExpiresAt: now.Add(time.Hour)},
		{ID: 2, ExpiresAt: now.Add(-time.Hour)},
		{ID: 3, ExpiresAt: now.Add(2 * time.Hour)},
		{ID: 4, ExpiresAt: now},
	}

	active, expired := service.Partition(links, now)

	require.Len(t, active, 2)
	require.Len(t, expired, 2)
	assert.Equal(t, int64(1), active[0].ID)
	assert.Equal(t, int64(3), active[1].ID)
	assert.Equal(t, int64(2), expired[0].ID)
	assert.Equal(t, int64(4), expired[1].ID)

	active, expired = service.Partition(nil, now)
	assert.NotNil(t, active)
	assert.NotNil(t, expired)
}

func TestParseInstant(t *testing.T) {
	want := time.Date(2026, 5, 17, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2026-05-17T10:30:00Z", want},
		{"2026-05-17T13:30:00+03:00", want},
		{"2026-05-17T10:30:00.000Z", want},
		{"2026-05-17T10:30:00", want},
		{"2026-05-17T10:30", want},
		{"2026-05-17 10:30:00", want},
		{"2026-05-17", time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)},
		{"  2026-05-17T10:30:00Z  ", want},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := service.ParseInstant(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, raw := range []string{"", "tomorrow", "17.05.2026", "2026-13-01"} {
		_, err := service.ParseInstant(raw)
		assert.ErrorIs(t, err, service.ErrInvalidDate, "значение: %q", raw)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind service.Kind
	}{
		{service.ErrInvalidURL, service.KindInvalidInput},
		{service.ErrInvalidCode, service.KindInvalidInput},
		{service.ErrInvalidDate, service.KindInvalidInput},
		{service.ErrCodeTaken, service.KindConflict},
		{service.ErrAllocationExhausted, service.KindConflict},
		{service.ErrNotFound, service.KindNotFound},
		{service.ErrNotAuthorized, service.KindNotAuthorized},
		{service.ErrQuotaExceeded, service.KindQuotaExceeded},
		{fmt.Errorf("wrapped: %w", service.ErrUnavailable), service.KindUnavailable},
		{errors.New("boom"), service.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, service.KindOf(tt.err))
			assert.Equal(t, tt.kind == service.KindUnavailable, tt.kind.Retryable())
		})
	}
}

func TestQuotaEnforcer_CheckQuota(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	quota := service.NewQuotaEnforcer(repo, 2)
	ctx := context.Background()

	assert.NoError(t, quota.CheckQuota(ctx, alice))

	repo.Insert(models.Link{OwnerID: alice, ShortCode: "first01"})
	repo.Insert(models.Link{OwnerID: alice, ShortCode: "second1"})

	assert.ErrorIs(t, quota.CheckQuota(ctx, alice), service.ErrQuotaExceeded)
	assert.NoError(t, quota.CheckQuota(ctx, bob))

	repo.Err = fmt.Errorf("count: %w", repository.ErrUnavailable)
	assert.ErrorIs(t, quota.CheckQuota(ctx, bob), service.ErrUnavailable)
}
