package usecase

import "github.com/tolibear/evolving-site-sub001/internal/core/port"

type noopMetrics struct{}

func (noopMetrics) LoginOutcome(string)                    {}
func (noopMetrics) AllowanceOutcome(string, string, string) {}
func (noopMetrics) SecurityEvent(string)                   {}
func (noopMetrics) Reaped(int64)                           {}

func metricsOrNoop(metrics port.AuthMetrics) port.AuthMetrics {
	if metrics == nil {
		return noopMetrics{}
	}
	return metrics
}
