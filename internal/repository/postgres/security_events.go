package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
)

// SecurityEventRepository appends audit rows to board.security_events.
type SecurityEventRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewSecurityEventRepository(exec pgExecutor) *SecurityEventRepository {
	return &SecurityEventRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// Append inserts the event. Rows are never updated or deleted.
func (r *SecurityEventRepository) Append(ctx context.Context, event domain.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	stmt, args, err := r.builder.Insert("board.security_events").
		Columns("id", "kind", "source_address", "path", "detail", "account_id", "occurred_at").
		Values(
			event.ID,
			string(event.Kind),
			event.SourceAddress,
			event.Path,
			event.Detail,
			optionalString(event.AccountID),
			event.OccurredAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

var _ port.SecurityEventRepository = (*SecurityEventRepository)(nil)
