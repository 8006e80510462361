package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing.
// A single mutex makes every method atomic, matching the store contract.
type MockLinkRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*models.Link
	byCode map[string]int64
	nextID int64

	// Err, when set, is returned by every method (simulates an outage)
	Err error
	// IncrementErr, when set, is returned by IncrementAccessCount only
	IncrementErr error
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		byID:   make(map[int64]*models.Link),
		byCode: make(map[string]int64),
		nextID: 1,
	}
}

func (m *MockLinkRepository) CreateIfCodeFree(ctx context.Context, link *models.Link, maxPerOwner int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if m.countLocked(link.OwnerID) >= maxPerOwner {
		return repository.ErrQuotaExceeded
	}
	if _, exists := m.byCode[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	link.AccessCount = 0
	m.nextID++

	stored := *link
	m.byID[stored.ID] = &stored
	m.byCode[stored.ShortCode] = stored.ID
	return nil
}

func (m *MockLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	id, exists := m.byCode[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	link := *m.byID[id]
	return &link, nil
}

func (m *MockLinkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	stored, exists := m.byID[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	link := *stored
	return &link, nil
}

func (m *MockLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	links := []models.Link{}
	for _, link := range m.byID {
		if link.OwnerID == ownerID {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ID > links[j].ID
	})
	return links, nil
}

func (m *MockLinkRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return 0, m.Err
	}
	return m.countLocked(ownerID), nil
}

func (m *MockLinkRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return false, m.Err
	}
	_, exists := m.byCode[code]
	return exists, nil
}

func (m *MockLinkRepository) UpdateExpiration(ctx context.Context, id int64, ownerID string, expiresAt time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	stored, exists := m.byID[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	if stored.OwnerID != ownerID {
		return nil, repository.ErrNotOwner
	}
	if !expiresAt.After(stored.CreatedAt) {
		return nil, repository.ErrExpirationBeforeCreation
	}
	stored.ExpiresAt = expiresAt
	link := *stored
	return &link, nil
}

func (m *MockLinkRepository) DeleteByID(ctx context.Context, id int64, ownerID string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	stored, exists := m.byID[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	if stored.OwnerID != ownerID {
		return nil, repository.ErrNotOwner
	}
	delete(m.byID, id)
	delete(m.byCode, stored.ShortCode)
	return stored, nil
}

func (m *MockLinkRepository) IncrementAccessCount(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if m.IncrementErr != nil {
		return m.IncrementErr
	}
	id, exists := m.byCode[code]
	if !exists {
		return repository.ErrLinkNotFound
	}
	m.byID[id].AccessCount++
	return nil
}

// Insert stores a link as-is, bypassing quota; used to seed fixtures.
func (m *MockLinkRepository) Insert(link models.Link) *models.Link {
	m.mu.Lock()
	defer m.mu.Unlock()

	link.ID = m.nextID
	m.nextID++
	m.byID[link.ID] = &link
	m.byCode[link.ShortCode] = link.ID
	stored := link
	return &stored
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[int64]*models.Link)
	m.byCode = make(map[string]int64)
	m.nextID = 1
}

func (m *MockLinkRepository) countLocked(ownerID string) int {
	count := 0
	for _, link := range m.byID {
		if link.OwnerID == ownerID {
			count++
		}
	}
	return count
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*repository.CachedLink
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*repository.CachedLink),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, code string) (*repository.CachedLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[code]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	copied := *link
	return &copied, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, link *repository.CachedLink, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *link
	m.cache[link.ShortCode] = &copied
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, code)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*repository.CachedLink)
}
