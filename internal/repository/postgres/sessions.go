package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
// Rows are keyed by the token digest; the raw cookie token never reaches the database.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// Create persists a new session in a single statement.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("board.sessions").
		Columns(
			"token_hash",
			"account_id",
			"ip",
			"user_agent",
			"created_at",
			"last_seen",
			"expires_at",
		).
		Values(
			session.ID,
			session.AccountID,
			optionalString(session.IP),
			optionalString(session.UserAgent),
			session.CreatedAt,
			session.LastSeen,
			session.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// Get fetches a session by its token digest.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(
			"token_hash",
			"account_id",
			"ip",
			"user_agent",
			"created_at",
			"last_seen",
			"expires_at",
		).
		From("board.sessions").
		Where(squirrel.Eq{"token_hash": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// Extend moves the expiry forward and records activity.
func (r *SessionRepository) Extend(ctx context.Context, sessionID string, expiresAt time.Time, seenAt time.Time) error {
	stmt, args, err := r.builder.Update("board.sessions").
		Set("expires_at", expiresAt).
		Set("last_seen", seenAt).
		Where(squirrel.Eq{"token_hash": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build extend session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes the session. deleted is false when no row matched.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	stmt, args, err := r.builder.Delete("board.sessions").
		Where(squirrel.Eq{"token_hash": sessionID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpired purges every session whose expiry is at or before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("board.sessions").
		Where(squirrel.LtOrEq{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session   domain.Session
		ip        sql.NullString
		userAgent sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.AccountID,
		&ip,
		&userAgent,
		&session.CreatedAt,
		&session.LastSeen,
		&session.ExpiresAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.IP = nullableStringPtr(ip)
	session.UserAgent = nullableStringPtr(userAgent)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
