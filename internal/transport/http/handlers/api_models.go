package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// AccountSummary is the public view of an account.
type AccountSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// MeResponse reports who the caller is.
type MeResponse struct {
	Authenticated bool            `json:"authenticated"`
	Account       *AccountSummary `json:"account,omitempty"`
}

// AllowanceResponse reports the votes left for the caller.
type AllowanceResponse struct {
	IdentityKind domain.IdentityKind `json:"identity_kind"`
	Remaining    int                 `json:"remaining"`
}

// GrantRequest is the admin payload for a bulk grant.
type GrantRequest struct {
	Amount int `json:"amount" binding:"required"`
}

// GrantResponse reports how many allowances were raised.
type GrantResponse struct {
	Updated int64 `json:"updated"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newAccountSummary(account *domain.Account) *AccountSummary {
	if account == nil {
		return nil
	}
	return &AccountSummary{
		ID:          account.ID,
		Username:    account.ProviderUsername,
		DisplayName: account.ProviderDisplayName,
		AvatarURL:   account.ProviderAvatarURL,
	}
}
