package port

// AuthMetrics records identity outcomes. Implementations must tolerate concurrent use.
type AuthMetrics interface {
	LoginOutcome(outcome string)
	AllowanceOutcome(operation, identityKind, outcome string)
	SecurityEvent(kind string)
	Reaped(n int64)
}
