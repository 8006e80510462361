package service

import (
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
)

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsActive сообщает, действует ли ссылка в момент now
func IsActive(link *models.Link, now time.Time) bool {
	return now.Before(link.ExpiresAt)
}

// Partition делит ссылки на действующие и истёкшие, сохраняя порядок
func Partition(links []models.Link, now time.Time) (active, expired []models.Link) {
	active = []models.Link{}
	expired = []models.Link{}
	for i := range links {
		if IsActive(&links[i], now) {
			active = append(active, links[i])
		} else {
			expired = append(expired, links[i])
		}
	}
	return active, expired
}

// ParseInstant разбирает момент времени; значения без зоны считаются UTC
func ParseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
