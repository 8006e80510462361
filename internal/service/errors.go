package service

import (
	"errors"
	"fmt"

	"github.com/SergeiKhy/shortlink-directory/internal/repository"
)

// Ошибки сервиса
var (
	ErrInvalidURL          = errors.New("невалидный URL")
	ErrInvalidCode         = errors.New("невалидный короткий код")
	ErrInvalidDate         = errors.New("невалидная дата")
	ErrCodeTaken           = errors.New("короткий код уже занят")
	ErrAllocationExhausted = errors.New("не удалось подобрать свободный код")
	ErrQuotaExceeded       = errors.New("превышен лимит ссылок владельца")
	ErrNotFound            = errors.New("ссылка не найдена")
	ErrNotAuthorized       = errors.New("нет прав на ссылку")
	ErrUnavailable         = errors.New("хранилище недоступно")
)

// Kind группирует ошибки по способу реакции на них
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindNotFound
	KindNotAuthorized
	KindQuotaExceeded
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindNotAuthorized:
		return "not_authorized"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Retryable сообщает, можно ли повторить запрос без изменений
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

// KindOf классифицирует ошибку сервиса
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidDate):
		return KindInvalidInput
	case errors.Is(err, ErrCodeTaken), errors.Is(err, ErrAllocationExhausted):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// translate переводит ошибки хранилища в ошибки сервиса
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrLinkNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrCodeExists):
		return ErrCodeTaken
	case errors.Is(err, repository.ErrQuotaExceeded):
		return ErrQuotaExceeded
	case errors.Is(err, repository.ErrNotOwner):
		return ErrNotAuthorized
	case errors.Is(err, repository.ErrExpirationBeforeCreation):
		return ErrInvalidDate
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
