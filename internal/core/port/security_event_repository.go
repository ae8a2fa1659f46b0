package port

import (
	"context"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// SecurityEventRepository appends audit records.
type SecurityEventRepository interface {
	Append(ctx context.Context, event domain.SecurityEvent) error
}
