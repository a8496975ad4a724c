package durable

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

type countingBackend struct {
	calls atomic.Int32
	err   error
}

func (b *countingBackend) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	n := b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return &unifiedllm.Response{
		ID:         "resp",
		Message:    unifiedllm.AssistantMessage("answer"),
		StopReason: unifiedllm.StopEndTurn,
		Usage:      unifiedllm.Usage{InputTokens: 10, OutputTokens: int(n)},
	}, nil
}

func (b *countingBackend) Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	resp, err := b.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return unifiedllm.ResponseEvents(resp), nil
}

type countingTools struct {
	calls atomic.Int32
	err   error
}

func (c *countingTools) Execute(_ context.Context, call tool.Call, _ *tool.ToolContext) (*tool.Output, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &tool.Output{Content: "ran " + call.Name, Structured: json.RawMessage(`{"ok":true}`)}, nil
}

func request(text string) unifiedllm.Request {
	return unifiedllm.Request{Model: "m", Messages: []unifiedllm.Message{unifiedllm.UserMessage(text)}}
}

func TestJournaledModelReplay(t *testing.T) {
	store := NewMemoryStore()
	backend := &countingBackend{}
	ctx := context.Background()

	first, err := NewJournaled(store, "run-1").ExecuteModelCall(ctx, backend, request("hi"), DefaultActivityOptions("model-0"))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := NewJournaled(store, "run-1").ExecuteModelCall(ctx, backend, request("hi"), DefaultActivityOptions("model-0"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", backend.calls.Load())
	}
	if second.Text() != first.Text() || second.Usage.OutputTokens != first.Usage.OutputTokens {
		t.Errorf("replayed %+v, want %+v", second, first)
	}

	// A different run ID does not see run-1's journal.
	if _, err := NewJournaled(store, "run-2").ExecuteModelCall(ctx, backend, request("hi"), DefaultActivityOptions("model-0")); err != nil {
		t.Fatal(err)
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend called %d times, want 2", backend.calls.Load())
	}
}

func TestJournaledNonDeterminism(t *testing.T) {
	store := NewMemoryStore()
	backend := &countingBackend{}
	ctx := context.Background()
	j := NewJournaled(store, "run-1")

	if _, err := j.ExecuteModelCall(ctx, backend, request("hi"), DefaultActivityOptions("model-0")); err != nil {
		t.Fatal(err)
	}
	_, err := j.ExecuteModelCall(ctx, backend, request("something else"), DefaultActivityOptions("model-0"))
	if !errors.Is(err, ErrNonDeterministic) {
		t.Fatalf("err = %v, want ErrNonDeterministic", err)
	}
	var de *Error
	if !errors.As(err, &de) || de.Op != "replay" || de.ActivityID != "model-0" {
		t.Errorf("durable error = %+v", de)
	}

	_, err = j.ExecuteTool(ctx, &countingTools{}, tool.Call{ID: "model-0", Name: "x"}, nil, DefaultActivityOptions("model-0"))
	if !errors.Is(err, ErrNonDeterministic) {
		t.Errorf("kind mismatch err = %v", err)
	}
}

func TestJournaledToolReplay(t *testing.T) {
	store := NewMemoryStore()
	tools := &countingTools{}
	ctx := context.Background()
	call := tool.Call{ID: "c1", Name: "calc", Input: json.RawMessage(`{"expr":"2+2"}`)}

	fresh, err := NewJournaled(store, "r").ExecuteTool(ctx, tools, call, nil, DefaultActivityOptions(call.ID))
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	replayed, err := NewJournaled(store, "r").ExecuteTool(ctx, tools, call, nil, DefaultActivityOptions(call.ID))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if tools.calls.Load() != 1 {
		t.Errorf("tool ran %d times, want 1", tools.calls.Load())
	}
	if fresh.Content != replayed.Content || string(fresh.Structured) != string(replayed.Structured) {
		t.Errorf("fresh %+v != replayed %+v", fresh, replayed)
	}
	if store.Len("r") != 1 {
		t.Errorf("journal has %d entries", store.Len("r"))
	}
}

func TestJournaledToolErrors(t *testing.T) {
	ctx := context.Background()
	call := tool.Call{ID: "c1", Name: "calc"}

	store := NewMemoryStore()
	retry := &countingTools{err: tool.ModelRetry("calc", "bad expression")}
	j := NewJournaled(store, "r")
	for i := 0; i < 2; i++ {
		_, err := j.ExecuteTool(ctx, retry, call, nil, DefaultActivityOptions(call.ID))
		if tool.KindOf(err) != tool.KindModelRetry {
			t.Fatalf("call %d: kind = %q", i, tool.KindOf(err))
		}
	}
	if retry.calls.Load() != 1 {
		t.Errorf("recoverable failure should be journaled, tool ran %d times", retry.calls.Load())
	}

	store = NewMemoryStore()
	failing := &countingTools{err: tool.ExecutionFailed("calc", errors.New("crash"))}
	j = NewJournaled(store, "r")
	for i := 0; i < 2; i++ {
		if _, err := j.ExecuteTool(ctx, failing, call, nil, DefaultActivityOptions(call.ID)); tool.KindOf(err) != tool.KindExecutionFailed {
			t.Fatalf("call %d: kind = %q", i, tool.KindOf(err))
		}
	}
	if failing.calls.Load() != 2 || store.Len("r") != 0 {
		t.Errorf("terminal failure should not be journaled (calls %d, entries %d)", failing.calls.Load(), store.Len("r"))
	}
}

func TestJournaledBackendErrorNotJournaled(t *testing.T) {
	store := NewMemoryStore()
	backend := &countingBackend{err: errors.New("503")}
	j := NewJournaled(store, "r")
	if _, err := j.ExecuteModelCall(context.Background(), backend, request("hi"), DefaultActivityOptions("model-0")); err == nil {
		t.Fatal("expected backend error")
	}
	if store.Len("r") != 0 {
		t.Error("backend errors must not be journaled")
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Save(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}

func TestJournaledWriteFailure(t *testing.T) {
	store := &failingStore{NewMemoryStore()}
	backend := &countingBackend{}

	resp, err := NewJournaled(store, "r").ExecuteModelCall(context.Background(), backend, request("hi"), DefaultActivityOptions("model-0"))
	if err != nil || resp.Text() != "answer" {
		t.Fatalf("best-effort write should still return the response: %v, %v", resp, err)
	}

	_, err = NewJournaled(store, "r", WithStrictWrites()).ExecuteModelCall(context.Background(), backend, request("hi"), DefaultActivityOptions("model-0"))
	var de *Error
	if !errors.As(err, &de) || de.Op != "save" {
		t.Errorf("strict write err = %v", err)
	}
}

func TestJournalKeyDistinct(t *testing.T) {
	if journalKey("ab", "c") == journalKey("a", "bc") {
		t.Error("keys must separate run and activity IDs")
	}
	if journalKey("r", "x") != journalKey("r", "x") {
		t.Error("keys must be stable")
	}
}
