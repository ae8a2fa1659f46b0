package port

import (
	"context"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// AllowanceRepository exposes atomic, relative adjustments of vote allowances.
type AllowanceRepository interface {
	// Ensure creates the record with the supplied initial value when absent.
	Ensure(ctx context.Context, identity domain.Identity, initial int) error
	Remaining(ctx context.Context, identity domain.Identity) (int, error)
	// ConsumeOne decrements by one only when remaining is positive and counts the vote as spent.
	// ok is false when nothing was decremented.
	ConsumeOne(ctx context.Context, identity domain.Identity) (remaining int, ok bool, err error)
	// RefundOne gives back one spent vote without exceeding maxRemaining.
	// ok is false when the identity has nothing spent to give back.
	RefundOne(ctx context.Context, identity domain.Identity, maxRemaining int) (remaining int, ok bool, err error)
	// GrantAll adds amount to every record without exceeding maxRemaining and returns the number of rows touched.
	GrantAll(ctx context.Context, amount int, maxRemaining int) (int64, error)
}
