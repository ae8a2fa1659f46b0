package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts       *AccountRepository
	Sessions       *SessionRepository
	Allowances     *AllowanceRepository
	SecurityEvents *SecurityEventRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Accounts:       NewAccountRepository(pool),
		Sessions:       NewSessionRepository(pool),
		Allowances:     NewAllowanceRepository(pool),
		SecurityEvents: NewSecurityEventRepository(pool),
	}
}
