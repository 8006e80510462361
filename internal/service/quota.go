package service

import (
	"context"
)

// OwnerCounter считает ссылки владельца
type OwnerCounter interface {
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// QuotaEnforcer ограничивает число ссылок одного владельца.
//
// CheckQuota - быстрая предварительная проверка. Тот же лимит передаётся в
// CreateIfCodeFree и проверяется в транзакции вставки.
type QuotaEnforcer struct {
	counter OwnerCounter
	limit   int
}

func NewQuotaEnforcer(counter OwnerCounter, limit int) *QuotaEnforcer {
	return &QuotaEnforcer{counter: counter, limit: limit}
}

// Limit возвращает максимальное число ссылок на владельца
func (q *QuotaEnforcer) Limit() int {
	return q.limit
}

// CheckQuota учитывает все ссылки владельца, включая истёкшие
func (q *QuotaEnforcer) CheckQuota(ctx context.Context, ownerID string) error {
	count, err := q.counter.CountByOwner(ctx, ownerID)
	if err != nil {
		return translate(err)
	}
	if count >= q.limit {
		return ErrQuotaExceeded
	}
	return nil
}
