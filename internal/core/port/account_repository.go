package port

import (
	"context"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// AccountRepository persists accounts keyed by provider identity.
type AccountRepository interface {
	// Upsert inserts the account or refreshes the profile of the existing row for the
	// same provider identity. created reports whether a new row was inserted.
	Upsert(ctx context.Context, profile domain.ProviderProfile) (account *domain.Account, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.Account, error)
}
