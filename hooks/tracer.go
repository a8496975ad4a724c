package hooks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/SecBear/neuron-sub003/hooks"

// runSpans tracks the open spans of one run.
type runSpans struct {
	ctx   context.Context
	run   trace.Span
	model trace.Span
	tools map[string]trace.Span
}

// Tracer turns loop events into OpenTelemetry spans: one span per run with
// a child span per model call and per tool call. It never changes the
// outcome of a run.
type Tracer struct {
	tracer trace.Tracer
	runs   map[string]*runSpans
	mu     sync.Mutex
}

// NewTracer creates a Tracer using tp. A nil tp uses the global provider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(tracerName),
		runs:   make(map[string]*runSpans),
	}
}

// OnEvent implements Hook.
func (t *Tracer) OnEvent(ctx context.Context, ev Event) (Action, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs := t.run(ctx, ev.RunID)
	switch ev.Point {
	case PointLoopIteration:
		rs.run.AddEvent("loop_iteration", trace.WithAttributes(attribute.Int("neuron.turn", ev.Turn)))

	case PointPreModelCall:
		attrs := []attribute.KeyValue{attribute.Int("neuron.turn", ev.Turn)}
		if ev.Request != nil {
			attrs = append(attrs,
				attribute.String("gen_ai.request.model", ev.Request.Model),
				attribute.Int("neuron.request.messages", len(ev.Request.Messages)),
			)
		}
		_, rs.model = t.tracer.Start(rs.ctx, "model.call",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)

	case PointPostModelCall:
		if rs.model == nil {
			break
		}
		if ev.Response != nil {
			rs.model.SetAttributes(
				attribute.String("gen_ai.system", ev.Response.Provider),
				attribute.Int("gen_ai.usage.input_tokens", ev.Response.Usage.InputTokens),
				attribute.Int("gen_ai.usage.output_tokens", ev.Response.Usage.OutputTokens),
				attribute.String("gen_ai.response.finish_reason", string(ev.Response.StopReason)),
			)
		}
		rs.model.End()
		rs.model = nil

	case PointPreToolExecution:
		if ev.ToolCall == nil {
			break
		}
		_, span := t.tracer.Start(rs.ctx, "tool.execute",
			trace.WithAttributes(
				attribute.String("neuron.tool.name", ev.ToolCall.Name),
				attribute.String("neuron.tool.call_id", ev.ToolCall.ID),
			),
		)
		rs.tools[ev.ToolCall.ID] = span

	case PointPostToolExecution:
		if ev.ToolCall == nil {
			break
		}
		span, ok := rs.tools[ev.ToolCall.ID]
		if !ok {
			break
		}
		delete(rs.tools, ev.ToolCall.ID)
		switch {
		case ev.Err != nil:
			span.RecordError(ev.Err)
			span.SetStatus(codes.Error, ev.Err.Error())
		case ev.ToolOutput != nil && ev.ToolOutput.IsError:
			span.SetStatus(codes.Error, "tool returned an error result")
		}
		span.End()

	case PointContextCompaction:
		rs.run.AddEvent("context_compaction", trace.WithAttributes(
			attribute.Int("neuron.tokens_before", ev.TokensBefore),
			attribute.Int("neuron.tokens_after", ev.TokensAfter),
		))

	case PointLoopExit:
		if rs.model != nil {
			rs.model.End()
		}
		for id, span := range rs.tools {
			span.End()
			delete(rs.tools, id)
		}
		rs.run.SetAttributes(
			attribute.Int("neuron.turns", ev.Turn),
			attribute.Int("gen_ai.usage.input_tokens", ev.Usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", ev.Usage.OutputTokens),
		)
		if ev.Err != nil {
			rs.run.RecordError(ev.Err)
			rs.run.SetStatus(codes.Error, ev.Err.Error())
		}
		rs.run.End()
		delete(t.runs, ev.RunID)
	}
	return Continue(), nil
}

// run returns the spans for runID, starting the run span on first use.
func (t *Tracer) run(ctx context.Context, runID string) *runSpans {
	if rs, ok := t.runs[runID]; ok {
		return rs
	}
	runCtx, span := t.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("neuron.run_id", runID)),
	)
	rs := &runSpans{ctx: runCtx, run: span, tools: make(map[string]trace.Span)}
	t.runs[runID] = rs
	return rs
}

// OpenRuns returns the number of runs with an unfinished span.
func (t *Tracer) OpenRuns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}
