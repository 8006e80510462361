package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
)

// Константы генератора кодов
const (
	charset       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	minCodeLength = 6
	maxCodeLength = 32
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// CodeChecker проверяет, занят ли код в хранилище
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator подбирает свободный короткий код.
//
// Проверка занятости здесь только снижает шанс конфликта: окончательно код
// резервируется атомарной вставкой в хранилище.
type CodeGenerator struct {
	checker     CodeChecker
	length      int
	maxAttempts int
	source      io.Reader
}

// NewCodeGenerator создаёт генератор; source == nil означает crypto/rand
func NewCodeGenerator(checker CodeChecker, length, maxAttempts int, source io.Reader) *CodeGenerator {
	if length < minCodeLength {
		length = minCodeLength
	}
	if length > maxCodeLength {
		length = maxCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if source == nil {
		source = rand.Reader
	}
	return &CodeGenerator{
		checker:     checker,
		length:      length,
		maxAttempts: maxAttempts,
		source:      source,
	}
}

// MaxAttempts возвращает лимит попыток подбора кода
func (g *CodeGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Allocate возвращает предпочтительный код, если он свободен, либо случайный
func (g *CodeGenerator) Allocate(ctx context.Context, preferred *string) (string, error) {
	if preferred != nil {
		if err := ValidateCode(*preferred); err != nil {
			return "", err
		}
		exists, err := g.checker.CodeExists(ctx, *preferred)
		if err != nil {
			return "", translate(err)
		}
		if exists {
			return "", ErrCodeTaken
		}
		return *preferred, nil
	}

	for i := 0; i < g.maxAttempts; i++ {
		code, err := g.randomCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		exists, err := g.checker.CodeExists(ctx, code)
		if err != nil {
			return "", translate(err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", ErrAllocationExhausted
}

// randomCode генерирует код из равномерного распределения по алфавиту
func (g *CodeGenerator) randomCode() (string, error) {
	result := make([]byte, g.length)
	alphabetSize := big.NewInt(int64(len(charset)))
	for i := 0; i < g.length; i++ {
		num, err := rand.Int(g.source, alphabetSize)
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// ValidateCode проверяет формат кода (6-32 символа, латинские буквы и цифры)
func ValidateCode(code string) error {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return ErrInvalidCode
	}
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}
