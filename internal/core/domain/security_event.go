package domain

import "time"

// SecurityEventKind enumerates audit event kinds.
type SecurityEventKind string

const (
	SecurityEventLoginStarted        SecurityEventKind = "login.started"
	SecurityEventLoginSucceeded      SecurityEventKind = "login.succeeded"
	SecurityEventLoginStateMismatch  SecurityEventKind = "login.state_mismatch"
	SecurityEventLoginExchangeFailed SecurityEventKind = "login.exchange_failed"
	SecurityEventLoginProfileFailed  SecurityEventKind = "login.profile_failed"
	SecurityEventLoginAccountFailed  SecurityEventKind = "login.account_failed"
	SecurityEventLoginSessionFailed  SecurityEventKind = "login.session_failed"
	SecurityEventLoginProviderDenied SecurityEventKind = "login.provider_denied"
	SecurityEventLogout              SecurityEventKind = "logout"
	SecurityEventLogoutRevokeFailed  SecurityEventKind = "logout.revoke_failed"
	SecurityEventAllowanceGranted    SecurityEventKind = "allowance.granted"
	SecurityEventAdminRejected       SecurityEventKind = "admin.rejected"
)

// SecurityEvent is an append-only audit record.
type SecurityEvent struct {
	ID            string
	Kind          SecurityEventKind
	SourceAddress string
	Path          string
	Detail        string
	AccountID     *string
	OccurredAt    time.Time
}
