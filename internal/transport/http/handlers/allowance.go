package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/transport/http/middleware"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

// GrantSourceAdmin tags grants made through the operator endpoint.
const GrantSourceAdmin = "admin"

var allowanceErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidIdentity, Status: http.StatusBadRequest, Message: "invalid voter identity"},
	{Err: usecase.ErrAllowanceDepleted, Status: http.StatusConflict, Message: "vote allowance depleted"},
	{Err: usecase.ErrNothingToRefund, Status: http.StatusConflict, Message: "no vote to refund"},
	{Err: usecase.ErrInvalidGrantAmount, Status: http.StatusBadRequest, Message: "amount must be positive"},
}

// AllowanceHandler exposes the vote allowance ledger.
type AllowanceHandler struct {
	allowance *usecase.AllowanceService
	logger    *zap.Logger
}

// NewAllowanceHandler constructs AllowanceHandler.
func NewAllowanceHandler(allowance *usecase.AllowanceService, logger *zap.Logger) *AllowanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllowanceHandler{allowance: allowance, logger: logger}
}

// RegisterRoutes binds the voter facing allowance endpoints.
func (h *AllowanceHandler) RegisterRoutes(r *gin.RouterGroup, mutating ...gin.HandlerFunc) {
	r.GET("/allowance", h.Remaining)
	r.POST("/allowance/consume", append(append([]gin.HandlerFunc{}, mutating...), h.Consume)...)
	r.POST("/allowance/refund", append(append([]gin.HandlerFunc{}, mutating...), h.Refund)...)
}

// RegisterAdminRoutes binds operator endpoints behind guard.
func (h *AllowanceHandler) RegisterAdminRoutes(r *gin.RouterGroup, guard gin.HandlerFunc) {
	r.POST("/allowance/grant", guard, h.Grant)
}

// Remaining returns the caller's allowance.
func (h *AllowanceHandler) Remaining(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	remaining, err := h.allowance.RemainingFor(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AllowanceResponse{IdentityKind: identity.Kind, Remaining: remaining})
}

// Consume spends one vote.
func (h *AllowanceHandler) Consume(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	remaining, err := h.allowance.Consume(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AllowanceResponse{IdentityKind: identity.Kind, Remaining: remaining})
}

// Refund returns one vote the caller previously spent.
func (h *AllowanceHandler) Refund(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	remaining, err := h.allowance.Refund(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AllowanceResponse{IdentityKind: identity.Kind, Remaining: remaining})
}

// Grant adds votes to every allowance.
func (h *AllowanceHandler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grant payload"))
		return
	}

	updated, err := h.allowance.GrantToAll(c.Request.Context(), req.Amount, GrantSourceAdmin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GrantResponse{Updated: updated})
}

func (h *AllowanceHandler) respondError(c *gin.Context, err error) {
	if !isMapped(err, allowanceErrorCases) {
		h.logger.Error("allowance operation failed", zap.String("trace_id", middleware.GetTraceID(c)), zap.Error(err))
	}
	RespondWithMappedError(c, err, allowanceErrorCases, http.StatusInternalServerError, "allowance unavailable")
}
