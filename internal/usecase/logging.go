package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/infra/logger"
)

func scopedLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return base.With(zap.String("request_id", id))
	}
	return base
}
