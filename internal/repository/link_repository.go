package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound             = errors.New("link not found")
	ErrCodeExists               = errors.New("short code already exists")
	ErrQuotaExceeded            = errors.New("owner link quota exceeded")
	ErrNotOwner                 = errors.New("link belongs to another owner")
	ErrExpirationBeforeCreation = errors.New("expiration must be after creation")
	ErrUnavailable              = errors.New("store unavailable")
)

// LinkRepository is the durable short code -> link mapping.
//
// Every mutating method is atomic on its own: callers never have to combine a
// read with a later write to keep uniqueness, quota or ownership correct.
type LinkRepository interface {
	// CreateIfCodeFree inserts link unless its short code is taken or the owner
	// already holds maxPerOwner links. On success ID and CreatedAt are set.
	CreateIfCodeFree(ctx context.Context, link *models.Link, maxPerOwner int) error
	GetByCode(ctx context.Context, code string) (*models.Link, error)
	GetByID(ctx context.Context, id int64) (*models.Link, error)
	// ListByOwner returns the owner's links, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateExpiration(ctx context.Context, id int64, ownerID string, expiresAt time.Time) (*models.Link, error)
	// DeleteByID removes the link and returns the removed record.
	DeleteByID(ctx context.Context, id int64, ownerID string) (*models.Link, error)
	IncrementAccessCount(ctx context.Context, code string) error
}

const linkColumns = `id, owner_id, destination_url, short_code, access_count, created_at, expires_at`

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) CreateIfCodeFree(ctx context.Context, link *models.Link, maxPerOwner int) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return wrapPgError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO link_owners (owner_id, link_count) VALUES ($1, 0) ON CONFLICT (owner_id) DO NOTHING`,
		link.OwnerID,
	)
	if err != nil {
		return wrapPgError("failed to register owner", err)
	}

	// Строка владельца блокируется до конца транзакции, поэтому параллельные
	// создания одного владельца выполняются строго по очереди.
	tag, err := tx.Exec(ctx,
		`UPDATE link_owners SET link_count = link_count + 1 WHERE owner_id = $1 AND link_count < $2`,
		link.OwnerID, maxPerOwner,
	)
	if err != nil {
		return wrapPgError("failed to reserve quota", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExceeded
	}

	query := `
		INSERT INTO links (owner_id, destination_url, short_code, access_count, created_at, expires_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (short_code) DO NOTHING
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		link.OwnerID,
		link.DestinationURL,
		link.ShortCode,
		link.CreatedAt,
		link.ExpiresAt,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeExists
		}
		return wrapPgError("failed to create link", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapPgError("failed to commit link", err)
	}

	link.AccessCount = 0
	link.CreatedAt = link.CreatedAt.UTC()
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFoundOr("failed to get link", err)
	}
	return link, nil
}

func (r *linkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr("failed to get link", err)
	}
	return link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, wrapPgError("failed to list links", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, wrapPgError("failed to scan link", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapPgError("error iterating links", err)
	}

	return links, nil
}

func (r *linkRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM links WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, wrapPgError("failed to count links", err)
	}
	return count, nil
}

func (r *linkRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, wrapPgError("failed to check short code", err)
	}
	return exists, nil
}

func (r *linkRepository) UpdateExpiration(ctx context.Context, id int64, ownerID string, expiresAt time.Time) (*models.Link, error) {
	query := `
		UPDATE links SET expires_at = $3
		WHERE id = $1 AND owner_id = $2 AND created_at < $3
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, id, ownerID, expiresAt))
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapPgError("failed to update expiration", err)
	}

	if err := explainMiss(ctx, r.db.Pool, id, ownerID); err != nil {
		return nil, err
	}
	return nil, ErrExpirationBeforeCreation
}

func (r *linkRepository) DeleteByID(ctx context.Context, id int64, ownerID string) (*models.Link, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, wrapPgError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `DELETE FROM links WHERE id = $1 AND owner_id = $2 RETURNING ` + linkColumns

	link, err := scanLink(tx.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := explainMiss(ctx, tx, id, ownerID); err != nil {
				return nil, err
			}
			return nil, ErrLinkNotFound
		}
		return nil, wrapPgError("failed to delete link", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE link_owners SET link_count = link_count - 1 WHERE owner_id = $1 AND link_count > 0`,
		ownerID,
	)
	if err != nil {
		return nil, wrapPgError("failed to release quota", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapPgError("failed to commit delete", err)
	}

	return link, nil
}

func (r *linkRepository) IncrementAccessCount(ctx context.Context, code string) error {
	result, err := r.db.Pool.Exec(ctx, `UPDATE links SET access_count = access_count + 1 WHERE short_code = $1`, code)
	if err != nil {
		return wrapPgError("failed to increment access count", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// explainMiss tells apart the reasons a conditional write matched no row:
// ErrLinkNotFound, ErrNotOwner, or nil when the row exists and is owned.
func explainMiss(ctx context.Context, q queryRower, id int64, ownerID string) error {
	var owner string
	err := q.QueryRow(ctx, `SELECT owner_id FROM links WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		return notFoundOr("failed to load link", err)
	}
	if owner != ownerID {
		return ErrNotOwner
	}
	return nil
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.OwnerID,
		&link.DestinationURL,
		&link.ShortCode,
		&link.AccessCount,
		&link.CreatedAt,
		&link.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	link.CreatedAt = link.CreatedAt.UTC()
	link.ExpiresAt = link.ExpiresAt.UTC()
	return link, nil
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLinkNotFound
	}
	return wrapPgError(op, err)
}

// wrapPgError marks connectivity failures with ErrUnavailable so callers can
// tell a transient outage from a broken query.
func wrapPgError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Класс 08 - ошибки соединения, 57P0x - сервер останавливается
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}

	return errors.Is(err, context.DeadlineExceeded)
}
