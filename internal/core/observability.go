package core

import (
	"context"
	"time"

	"evocore/pkg/domain"
)

// Logger receives structured key/value pairs from service operations.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the current time per the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder aggregates operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finalizes a span with the operation outcome.
type TraceSpan interface {
	End(err error)
}

// AuditStatus classifies an audit entry outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures a completed service operation for compliance trails.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries emitted by the service.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// auditProfile maps an operation name to its audit classification. Operations
// outside the map produce no audit entry.
type auditProfile struct {
	entity domain.EntityType
	action domain.Action
}

var auditProfiles = map[string]auditProfile{
	"create_root_variant": {entity: domain.EntityVariant, action: domain.ActionCreate},
	"create_variant":      {entity: domain.EntityVariant, action: domain.ActionCreate},
	"add_mutations":       {entity: domain.EntityVariant, action: domain.ActionUpdate},
	"create_round":        {entity: domain.EntityRound, action: domain.ActionCreate},
	"generate_library":    {entity: domain.EntityRound, action: domain.ActionUpdate},
	"select_library":      {entity: domain.EntityRound, action: domain.ActionUpdate},
	"set_labels":          {entity: domain.EntityLabel, action: domain.ActionCreate},
	"commit_round":        {entity: domain.EntityRound, action: domain.ActionUpdate},
	"reset_round":         {entity: domain.EntityRound, action: domain.ActionUpdate},
	"recover_round":       {entity: domain.EntityRound, action: domain.ActionUpdate},
	"archive_round":       {entity: domain.EntityRound, action: domain.ActionUpdate},
}
