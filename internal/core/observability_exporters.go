package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationMetrics aggregates the outcomes of one campaign service operation.
type OperationMetrics struct {
	Calls    int64   `json:"calls"`
	Failures int64   `json:"failures"`
	TotalMS  float64 `json:"total_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// ExpvarMetricsRecorder publishes per-operation call counts, failure counts
// and latency aggregates via expvar. It fulfills MetricsRecorder for campaign
// drivers that want process-local metrics without an external collector.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]OperationMetrics
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name. When name is empty, a unique identifier is
// generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("campaign_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]OperationMetrics),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns a copy of the per-operation aggregates.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationMetrics, len(r.ops))
	for op, m := range r.ops {
		out[op] = m
	}
	return out
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	m := r.ops[operation]
	m.Calls++
	if !success {
		m.Failures++
	}
	m.TotalMS += ms
	if ms > m.MaxMS {
		m.MaxMS = ms
	}
	r.ops[operation] = m
	r.mu.Unlock()
}

// TraceLog emits one JSON line per completed service operation. It backs the
// Tracer option for campaign runs that want a flat, greppable span record
// instead of an external tracing backend. A nil writer discards every span.
type TraceLog struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type traceLine struct {
	Op        string    `json:"op"`
	Outcome   string    `json:"outcome"`
	ElapsedMS float64   `json:"elapsed_ms"`
	Err       string    `json:"err,omitempty"`
	At        time.Time `json:"at"`
}

// NewTraceLog constructs a tracer writing spans as JSON lines to w.
func NewTraceLog(w io.Writer) *TraceLog {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &TraceLog{enc: enc}
}

// Start implements the Tracer interface.
func (t *TraceLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &traceLogSpan{log: t, op: operation, started: time.Now().UTC()}
}

type traceLogSpan struct {
	log     *TraceLog
	op      string
	started time.Time
}

func (s *traceLogSpan) End(err error) {
	outcome := "success"
	var errMsg string
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	line := traceLine{
		Op:        s.op,
		Outcome:   outcome,
		ElapsedMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Err:       errMsg,
		At:        ended,
	}

	s.log.mu.Lock()
	if s.log.enc != nil {
		_ = s.log.enc.Encode(line)
	}
	s.log.mu.Unlock()
}
