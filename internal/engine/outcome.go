package engine

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type OutcomeStatus string

const (
	OutcomeOK           OutcomeStatus = "ok"
	OutcomeAuditFailure OutcomeStatus = "ok_with_audit_failure"
)

// AuditFailure names an archive write that was lost after the operational
// change committed.
type AuditFailure struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// Outcome accompanies every successful mutation. A failed mutation returns
// an error instead.
type Outcome struct {
	Status   OutcomeStatus  `json:"status" enum:"ok,ok_with_audit_failure"`
	Failures []AuditFailure `json:"failures,omitempty"`
}

func okOutcome() Outcome {
	return Outcome{Status: OutcomeOK}
}

func (o Outcome) Degraded() bool {
	return o.Status == OutcomeAuditFailure
}

func (o *Outcome) record(op string, err error) {
	o.Status = OutcomeAuditFailure
	o.Failures = append(o.Failures, AuditFailure{Op: op, Reason: err.Error()})
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// bestEffort runs an archive-store write after the operational commit. A
// failure is logged, attached to the current span and recorded on out; it
// never reaches the caller as an error.
func (e Engine) bestEffort(ctx context.Context, out *Outcome, op string, fn func(context.Context) error) {
	err := fn(ctx)
	if err == nil {
		return
	}
	e.logger().Printf("WARNING: audit %s failed: %v", op, err)
	trace.SpanFromContext(ctx).AddEvent("audit_failure", trace.WithAttributes(
		attribute.String("audit.op", op),
		attribute.String("error", err.Error()),
	))
	out.record(op, err)
}
