package usecase

import (
	"context"
	"log/slog"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

type noopTelemetry struct{}

func (noopTelemetry) ObserveSearch(string, bool, int, float64) {}
func (noopTelemetry) ObserveRerank(string) {}
func (noopTelemetry) ObserveGuardrail(string, domain.GuardAction, string) {}
func (noopTelemetry) ObserveQueryCache(bool) {}
func (noopTelemetry) ObserveIngest(string, int, float64) {}

type noopAudit struct{}

func (noopAudit) Log(context.Context, domain.AuditEvent) {}

func telemetryOrNoop(t ports.Telemetry) ports.Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

func auditOrNoop(a ports.AuditSink) ports.AuditSink {
	if a == nil {
		return noopAudit{}
	}
	return a
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
