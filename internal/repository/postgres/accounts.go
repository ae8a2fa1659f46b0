package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
)

var accountColumns = []string{
	"id",
	"provider",
	"provider_user_id",
	"provider_username",
	"provider_display_name",
	"provider_avatar_url",
	"created_at",
	"updated_at",
	"last_login_at",
}

// AccountRepository implements port.AccountRepository backed by PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: newBuilder(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates the account on first login and refreshes profile fields afterwards.
// A unique violation raised by a concurrent first login is resolved by re-reading the winner.
func (r *AccountRepository) Upsert(ctx context.Context, profile domain.ProviderProfile) (*domain.Account, bool, error) {
	if profile.Provider == "" || !profile.Complete() {
		return nil, false, fmt.Errorf("upsert account: incomplete provider profile")
	}

	now := r.now()
	stmt, args, err := r.builder.Insert("board.accounts").
		Columns(accountColumns...).
		Values(
			uuid.NewString(),
			profile.Provider,
			profile.ID,
			profile.Username,
			profile.DisplayName,
			profile.AvatarURL,
			now,
			now,
			now,
		).
		Suffix(`ON CONFLICT (provider, provider_user_id) DO UPDATE
			SET provider_username = EXCLUDED.provider_username,
			    provider_display_name = EXCLUDED.provider_display_name,
			    provider_avatar_url = EXCLUDED.provider_avatar_url,
			    updated_at = EXCLUDED.updated_at,
			    last_login_at = EXCLUDED.last_login_at
			RETURNING id, provider, provider_user_id, provider_username, provider_display_name,
			          provider_avatar_url, created_at, updated_at, last_login_at, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build upsert account sql: %w", err)
	}

	var inserted bool
	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...), &inserted)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.GetByProviderIdentity(ctx, profile.Provider, profile.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("%w: re-read account: %v", repository.ErrConflict, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("upsert account: %w", err)
	}

	return account, inserted, nil
}

// GetByID fetches an account by its identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByProviderIdentity fetches an account by its provider key.
func (r *AccountRepository) GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"provider": provider, "provider_user_id": providerUserID})
}

func (r *AccountRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("board.accounts").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...), nil)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row, inserted *bool) (*domain.Account, error) {
	var (
		account     domain.Account
		lastLoginAt sql.NullTime
	)

	dest := []any{
		&account.ID,
		&account.Provider,
		&account.ProviderUserID,
		&account.ProviderUsername,
		&account.ProviderDisplayName,
		&account.ProviderAvatarURL,
		&account.CreatedAt,
		&account.UpdatedAt,
		&lastLoginAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}

	if err := row.Scan(dest...); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if lastLoginAt.Valid {
		t := lastLoginAt.Time.UTC()
		account.LastLoginAt = &t
	}

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
