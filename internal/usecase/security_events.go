package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/core/domain"
	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/infra/logger"
)

const defaultRecordTimeout = 2 * time.Second

// SecurityEventRecorder appends audit records without ever affecting the caller.
type SecurityEventRecorder struct {
	repo    port.SecurityEventRepository
	metrics port.AuthMetrics
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewSecurityEventRecorder constructs a recorder. A nil repository only counts events.
func NewSecurityEventRecorder(repo port.SecurityEventRepository, metrics port.AuthMetrics, logger *zap.Logger) *SecurityEventRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityEventRecorder{
		repo:    repo,
		metrics: metricsOrNoop(metrics),
		logger:  logger,
		timeout: defaultRecordTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (r *SecurityEventRecorder) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Record stores an anonymous security event.
func (r *SecurityEventRecorder) Record(ctx context.Context, kind domain.SecurityEventKind, sourceAddress, path, detail string) {
	r.record(ctx, kind, nil, sourceAddress, path, detail)
}

// RecordForAccount stores a security event attributed to an account.
func (r *SecurityEventRecorder) RecordForAccount(ctx context.Context, kind domain.SecurityEventKind, accountID, sourceAddress, path, detail string) {
	var account *string
	if accountID != "" {
		account = &accountID
	}
	r.record(ctx, kind, account, sourceAddress, path, detail)
}

func (r *SecurityEventRecorder) record(ctx context.Context, kind domain.SecurityEventKind, accountID *string, sourceAddress, path, detail string) {
	if r == nil {
		return
	}
	r.metrics.SecurityEvent(string(kind))
	if r.repo == nil {
		return
	}

	// The request may already be cancelled; the audit write still gets its own budget.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	event := domain.SecurityEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		SourceAddress: sourceAddress,
		Path:          path,
		Detail:        detail,
		AccountID:     accountID,
		OccurredAt:    r.now(),
	}
	if err := r.repo.Append(writeCtx, event); err != nil {
		scopedLogger(ctx, r.logger).Warn("failed to record security event",
			zap.String("kind", string(kind)),
			zap.String("source_address", logger.MaskIP(sourceAddress)),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
