package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/config"
	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteDB is the embedded single-node alternative to Postgres.
//
// The pool is pinned to one connection: SQLite allows a single writer anyway,
// and with one connection every transaction below is serialized, which is what
// keeps the quota and uniqueness guarantees. ":memory:" databases live only as
// long as that connection and are meant for tests.
type SQLiteDB struct {
	DB *sql.DB
}

func NewSQLiteDB(cfg config.SQLiteConfig) (*SQLiteDB, error) {
	path := cfg.Path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &SQLiteDB{DB: db}, nil
}

func (db *SQLiteDB) Migrate(ctx context.Context) error {
	if _, err := db.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *SQLiteDB) Ping(ctx context.Context) error {
	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (db *SQLiteDB) Close() error {
	return db.DB.Close()
}

type sqliteLinkRepository struct {
	db *SQLiteDB
}

func NewSQLiteLinkRepository(db *SQLiteDB) LinkRepository {
	return &sqliteLinkRepository{db: db}
}

func (r *sqliteLinkRepository) CreateIfCodeFree(ctx context.Context, link *models.Link, maxPerOwner int) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO link_owners (owner_id, link_count) VALUES (?, 0) ON CONFLICT (owner_id) DO NOTHING`,
		link.OwnerID,
	)
	if err != nil {
		return wrapSQLiteError("failed to register owner", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE link_owners SET link_count = link_count + 1 WHERE owner_id = ? AND link_count < ?`,
		link.OwnerID, maxPerOwner,
	)
	if err != nil {
		return wrapSQLiteError("failed to reserve quota", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return wrapSQLiteError("failed to reserve quota", err)
	} else if n == 0 {
		return ErrQuotaExceeded
	}

	query := `
		INSERT INTO links (owner_id, destination_url, short_code, access_count, created_at, expires_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (short_code) DO NOTHING
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		link.OwnerID,
		link.DestinationURL,
		link.ShortCode,
		link.CreatedAt.UnixMicro(),
		link.ExpiresAt.UnixMicro(),
	).Scan(&link.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCodeExists
		}
		return wrapSQLiteError("failed to create link", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapSQLiteError("failed to commit link", err)
	}

	link.AccessCount = 0
	link.CreatedAt = time.UnixMicro(link.CreatedAt.UnixMicro()).UTC()
	link.ExpiresAt = time.UnixMicro(link.ExpiresAt.UnixMicro()).UTC()
	return nil
}

func (r *sqliteLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = ?`

	link, err := scanSQLiteLink(r.db.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, sqliteNotFoundOr("failed to get link", err)
	}
	return link, nil
}

func (r *sqliteLinkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = ?`

	link, err := scanSQLiteLink(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, sqliteNotFoundOr("failed to get link", err)
	}
	return link, nil
}

func (r *sqliteLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, wrapSQLiteError("failed to list links", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanSQLiteLink(rows)
		if err != nil {
			return nil, wrapSQLiteError("failed to scan link", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapSQLiteError("error iterating links", err)
	}

	return links, nil
}

func (r *sqliteLinkRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, wrapSQLiteError("failed to count links", err)
	}
	return count, nil
}

func (r *sqliteLinkRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, wrapSQLiteError("failed to check short code", err)
	}
	return exists, nil
}

func (r *sqliteLinkRepository) UpdateExpiration(ctx context.Context, id int64, ownerID string, expiresAt time.Time) (*models.Link, error) {
	query := `
		UPDATE links SET expires_at = ?
		WHERE id = ? AND owner_id = ? AND created_at < ?
		RETURNING ` + linkColumns

	micros := expiresAt.UnixMicro()
	link, err := scanSQLiteLink(r.db.DB.QueryRowContext(ctx, query, micros, id, ownerID, micros))
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, wrapSQLiteError("failed to update expiration", err)
	}

	if err := sqliteExplainMiss(ctx, r.db.DB, id, ownerID); err != nil {
		return nil, err
	}
	return nil, ErrExpirationBeforeCreation
}

func (r *sqliteLinkRepository) DeleteByID(ctx context.Context, id int64, ownerID string) (*models.Link, error) {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapSQLiteError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `DELETE FROM links WHERE id = ? AND owner_id = ? RETURNING ` + linkColumns

	link, err := scanSQLiteLink(tx.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := sqliteExplainMiss(ctx, tx, id, ownerID); err != nil {
				return nil, err
			}
			return nil, ErrLinkNotFound
		}
		return nil, wrapSQLiteError("failed to delete link", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE link_owners SET link_count = link_count - 1 WHERE owner_id = ? AND link_count > 0`,
		ownerID,
	)
	if err != nil {
		return nil, wrapSQLiteError("failed to release quota", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapSQLiteError("failed to commit delete", err)
	}

	return link, nil
}

func (r *sqliteLinkRepository) IncrementAccessCount(ctx context.Context, code string) error {
	result, err := r.db.DB.ExecContext(ctx, `UPDATE links SET access_count = access_count + 1 WHERE short_code = ?`, code)
	if err != nil {
		return wrapSQLiteError("failed to increment access count", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return wrapSQLiteError("failed to increment access count", err)
	}
	if n == 0 {
		return ErrLinkNotFound
	}

	return nil
}

type sqlQueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteExplainMiss(ctx context.Context, q sqlQueryRower, id int64, ownerID string) error {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT owner_id FROM links WHERE id = ?`, id).Scan(&owner)
	if err != nil {
		return sqliteNotFoundOr("failed to load link", err)
	}
	if owner != ownerID {
		return ErrNotOwner
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLink(row sqlScanner) (*models.Link, error) {
	link := &models.Link{}
	var createdAt, expiresAt int64
	err := row.Scan(
		&link.ID,
		&link.OwnerID,
		&link.DestinationURL,
		&link.ShortCode,
		&link.AccessCount,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}
	link.CreatedAt = time.UnixMicro(createdAt).UTC()
	link.ExpiresAt = time.UnixMicro(expiresAt).UTC()
	return link, nil
}

func sqliteNotFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLinkNotFound
	}
	return wrapSQLiteError(op, err)
}

// wrapSQLiteError marks connection-class failures with ErrUnavailable, as
// wrapPgError does for Postgres.
func wrapSQLiteError(op string, err error) error {
	if isSQLiteUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSQLiteUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// database/sql does not export its closed-database error
	if strings.Contains(err.Error(), "sql: database is closed") {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return true
		}
	}

	return false
}
