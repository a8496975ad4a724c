package durable

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

const (
	entryModel = "model"
	entryTool  = "tool"
)

// entry is one journaled activity.
type entry struct {
	Kind        string               `cbor:"kind"`
	ActivityID  string               `cbor:"activity_id"`
	Fingerprint []byte               `cbor:"fingerprint"`
	Response    *unifiedllm.Response `cbor:"response,omitempty"`
	Output      *tool.Output         `cbor:"output,omitempty"`
	ToolError   *toolError           `cbor:"tool_error,omitempty"`
	RecordedAt  int64                `cbor:"recorded_at"`
}

// toolError is the journaled form of a recoverable tool failure.
type toolError struct {
	Kind    tool.ErrorKind `cbor:"kind"`
	Tool    string         `cbor:"tool"`
	Message string         `cbor:"message"`
}

// toolCallKey is what a tool entry's fingerprint covers.
type toolCallKey struct {
	Name  string `cbor:"name"`
	Input []byte `cbor:"input"`
}

// Journaled records completed calls in a Store and replays them when the
// same run executes again. Calls are identified by run ID and activity ID;
// a replayed call whose request differs from the journaled one fails with
// ErrNonDeterministic.
//
// Successful model responses and tool outputs are journaled, as are
// recoverable tool failures (model-retry hints and timeouts) since the
// model saw them. Backend errors and other tool failures end the run and
// are not journaled, so a rerun tries them again.
type Journaled struct {
	store  Store
	runID  string
	inner  Router
	logger *slog.Logger
	strict bool
}

// JournalOption configures a Journaled router.
type JournalOption func(*Journaled)

// WithInner sets the router that executes calls missing from the journal.
// The default is Local.
func WithInner(r Router) JournalOption {
	return func(j *Journaled) {
		j.inner = r
	}
}

// WithJournalLogger sets the logger.
func WithJournalLogger(logger *slog.Logger) JournalOption {
	return func(j *Journaled) {
		j.logger = logger
	}
}

// WithStrictWrites makes a failed journal write fail the call instead of
// being logged.
func WithStrictWrites() JournalOption {
	return func(j *Journaled) {
		j.strict = true
	}
}

// NewJournaled creates a journaling router for runID.
func NewJournaled(store Store, runID string, opts ...JournalOption) *Journaled {
	j := &Journaled{store: store, runID: runID, inner: Local{}}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	return j
}

// RunID returns the run this router journals.
func (j *Journaled) RunID() string { return j.runID }

// ExecuteModelCall implements Router.
func (j *Journaled) ExecuteModelCall(ctx context.Context, backend unifiedllm.Backend, req unifiedllm.Request, opts ActivityOptions) (*unifiedllm.Response, error) {
	fp, err := fingerprint(req)
	if err != nil {
		return nil, &Error{Op: "encode", ActivityID: opts.ID, Message: "fingerprinting request", Cause: err}
	}
	if e, ok, err := j.replay(ctx, entryModel, opts.ID, fp); err != nil {
		return nil, err
	} else if ok {
		j.logger.Debug("replayed model call", "run_id", j.runID, "activity_id", opts.ID)
		return e.Response, nil
	}

	resp, err := j.inner.ExecuteModelCall(ctx, backend, req, opts)
	if err != nil {
		return nil, err
	}
	e, err := j.record(ctx, &entry{Kind: entryModel, ActivityID: opts.ID, Fingerprint: fp, Response: resp})
	if err != nil {
		return nil, err
	}
	return e.Response, nil
}

// ExecuteTool implements Router.
func (j *Journaled) ExecuteTool(ctx context.Context, tools ToolExecutor, call tool.Call, tc *tool.ToolContext, opts ActivityOptions) (*tool.Output, error) {
	fp, err := fingerprint(toolCallKey{Name: call.Name, Input: call.Input})
	if err != nil {
		return nil, &Error{Op: "encode", ActivityID: opts.ID, Message: "fingerprinting tool call", Cause: err}
	}
	if e, ok, err := j.replay(ctx, entryTool, opts.ID, fp); err != nil {
		return nil, err
	} else if ok {
		j.logger.Debug("replayed tool call", "run_id", j.runID, "activity_id", opts.ID, "tool", call.Name)
		return e.toolResult()
	}

	out, err := j.inner.ExecuteTool(ctx, tools, call, tc, opts)
	rec := &entry{Kind: entryTool, ActivityID: opts.ID, Fingerprint: fp, Output: out}
	if err != nil {
		te, ok := tool.AsError(err)
		if !ok || !te.Recoverable() {
			return nil, err
		}
		rec.Output = nil
		rec.ToolError = &toolError{Kind: te.Kind, Tool: te.Tool, Message: te.Message}
	}
	e, err := j.record(ctx, rec)
	if err != nil {
		return nil, err
	}
	return e.toolResult()
}

func (e *entry) toolResult() (*tool.Output, error) {
	if e.ToolError != nil {
		return nil, &tool.Error{Kind: e.ToolError.Kind, Tool: e.ToolError.Tool, Message: e.ToolError.Message}
	}
	if e.Output == nil {
		return &tool.Output{}, nil
	}
	return e.Output, nil
}

// replay loads the journaled entry for activityID, if there is one, and
// checks it matches the call being made.
func (j *Journaled) replay(ctx context.Context, kind, activityID string, fp []byte) (*entry, bool, error) {
	payload, ok, err := j.store.Load(ctx, j.runID, journalKey(j.runID, activityID))
	if err != nil {
		return nil, false, &Error{Op: "load", ActivityID: activityID, Cause: err}
	}
	if !ok {
		return nil, false, nil
	}
	var e entry
	if err := decode(payload, &e); err != nil {
		return nil, false, &Error{Op: "decode", ActivityID: activityID, Cause: err}
	}
	if e.Kind != kind {
		return nil, false, &Error{Op: "replay", ActivityID: activityID,
			Message: "journaled " + e.Kind + " call, replaying " + kind + " call", Cause: ErrNonDeterministic}
	}
	if !bytes.Equal(e.Fingerprint, fp) {
		return nil, false, &Error{Op: "replay", ActivityID: activityID,
			Message: "request differs from the journaled one", Cause: ErrNonDeterministic}
	}
	return &e, true, nil
}

// record journals e and returns the entry decoded back from the journaled
// bytes.
func (j *Journaled) record(ctx context.Context, e *entry) (*entry, error) {
	e.RecordedAt = time.Now().UnixNano()
	payload, err := encode(e)
	if err != nil {
		return nil, &Error{Op: "encode", ActivityID: e.ActivityID, Cause: err}
	}
	if err := j.store.Save(ctx, j.runID, journalKey(j.runID, e.ActivityID), payload); err != nil {
		if j.strict {
			return nil, &Error{Op: "save", ActivityID: e.ActivityID, Cause: err}
		}
		j.logger.Warn("journal write failed", "run_id", j.runID, "activity_id", e.ActivityID, "error", err)
	}
	var decoded entry
	if err := decode(payload, &decoded); err != nil {
		return nil, &Error{Op: "decode", ActivityID: e.ActivityID, Cause: err}
	}
	return &decoded, nil
}
