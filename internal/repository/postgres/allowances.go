package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/repository"
)

// AllowanceRepository implements port.AllowanceRepository backed by PostgreSQL.
// Every mutation is a single relative UPDATE so concurrent voters never lose writes.
type AllowanceRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewAllowanceRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAllowanceRepository(exec pgExecutor) *AllowanceRepository {
	return &AllowanceRepository{
		exec:    exec,
		builder: newBuilder(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ensure inserts the record with the initial value unless it already exists.
func (r *AllowanceRepository) Ensure(ctx context.Context, identity domain.Identity, initial int) error {
	stmt, args, err := r.builder.Insert("board.vote_allowances").
		Columns("identity_kind", "identity", "remaining", "updated_at").
		Values(string(identity.Kind), identity.Value, initial, r.now()).
		Suffix("ON CONFLICT (identity_kind, identity) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ensure allowance sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("ensure allowance: %w", err)
	}
	return nil
}

// Remaining returns the current balance or repository.ErrNotFound.
func (r *AllowanceRepository) Remaining(ctx context.Context, identity domain.Identity) (int, error) {
	stmt, args, err := r.builder.Select("remaining").
		From("board.vote_allowances").
		Where(identityFilter(identity)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select allowance sql: %w", err)
	}

	var remaining int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&remaining); err != nil {
		if isNoRows(err) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("select allowance: %w", err)
	}
	return remaining, nil
}

// ConsumeOne decrements the balance only while it is positive and records the spent vote.
func (r *AllowanceRepository) ConsumeOne(ctx context.Context, identity domain.Identity) (int, bool, error) {
	stmt, args, err := r.builder.Update("board.vote_allowances").
		Set("remaining", squirrel.Expr("remaining - 1")).
		Set("spent", squirrel.Expr("spent + 1")).
		Set("updated_at", r.now()).
		Where(identityFilter(identity)).
		Where(squirrel.Gt{"remaining": 0}).
		Suffix("RETURNING remaining").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build consume allowance sql: %w", err)
	}

	var remaining int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&remaining); err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("consume allowance: %w", err)
	}
	return remaining, true, nil
}

// RefundOne returns one previously spent vote without pushing the balance past maxRemaining.
// Balances already above the cap are left untouched rather than lowered. ok is false when
// the identity has no spent vote to give back.
func (r *AllowanceRepository) RefundOne(ctx context.Context, identity domain.Identity, maxRemaining int) (int, bool, error) {
	stmt, args, err := r.builder.Update("board.vote_allowances").
		Set("remaining", squirrel.Expr("LEAST(remaining + 1, GREATEST(remaining, ?))", maxRemaining)).
		Set("spent", squirrel.Expr("spent - 1")).
		Set("updated_at", r.now()).
		Where(identityFilter(identity)).
		Where(squirrel.Gt{"spent": 0}).
		Suffix("RETURNING remaining").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build refund allowance sql: %w", err)
	}

	var remaining int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&remaining); err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("refund allowance: %w", err)
	}
	return remaining, true, nil
}

// GrantAll raises every balance below the cap by amount, clamped at maxRemaining.
func (r *AllowanceRepository) GrantAll(ctx context.Context, amount int, maxRemaining int) (int64, error) {
	stmt, args, err := r.builder.Update("board.vote_allowances").
		Set("remaining", squirrel.Expr("LEAST(remaining + ?, ?)", amount, maxRemaining)).
		Set("updated_at", r.now()).
		Where(squirrel.Lt{"remaining": maxRemaining}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build grant allowance sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("grant allowance: %w", err)
	}
	return tag.RowsAffected(), nil
}

func identityFilter(identity domain.Identity) squirrel.Eq {
	return squirrel.Eq{"identity_kind": string(identity.Kind), "identity": identity.Value}
}

var _ port.AllowanceRepository = (*AllowanceRepository)(nil)
