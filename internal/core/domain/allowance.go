package domain

import "time"

// IdentityKind distinguishes allowance owners.
type IdentityKind string

const (
	IdentityKindFingerprint IdentityKind = "fingerprint"
	IdentityKindAccount     IdentityKind = "account"
)

// Identity is the key of an allowance record.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// ResolveIdentity picks the account when the caller is authenticated and falls
// back to the anonymous fingerprint otherwise.
func ResolveIdentity(accountID, fingerprint string) Identity {
	if accountID != "" {
		return Identity{Kind: IdentityKindAccount, Value: accountID}
	}
	return Identity{Kind: IdentityKindFingerprint, Value: fingerprint}
}

// Valid reports whether the identity can be used as a ledger key.
func (i Identity) Valid() bool {
	if i.Value == "" {
		return false
	}
	return i.Kind == IdentityKindFingerprint || i.Kind == IdentityKindAccount
}

// Allowance is the persisted vote allowance of an identity.
type Allowance struct {
	Identity  Identity
	Remaining int
	UpdatedAt time.Time
}
