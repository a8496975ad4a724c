package agentloop

import (
	"context"
	"sync"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// StreamEventKind identifies a streaming event.
type StreamEventKind string

const (
	StreamTextDelta      StreamEventKind = "text_delta"
	StreamReasoningDelta StreamEventKind = "reasoning_delta"
	StreamToolCall       StreamEventKind = "tool_call"
	StreamToolResult     StreamEventKind = "tool_result"
	StreamUsage          StreamEventKind = "usage"
	StreamCompaction     StreamEventKind = "compaction"
	StreamFinal          StreamEventKind = "final"
	StreamError          StreamEventKind = "error"
)

// StreamEvent is one event from RunStreaming. The last event of a run is
// always StreamFinal or StreamError, and carries the terminal outcome.
type StreamEvent struct {
	Kind       StreamEventKind   `json:"kind"`
	RunID      string            `json:"run_id"`
	Turn       int               `json:"turn"`
	Timestamp  time.Time         `json:"timestamp"`
	Delta      string            `json:"delta,omitempty"`
	ToolCall   *tool.Call        `json:"tool_call,omitempty"`
	ToolResult *ToolResult       `json:"tool_result,omitempty"`
	Usage      *unifiedllm.Usage `json:"usage,omitempty"`
	Outcome    TurnOutcome       `json:"-"`
	Err        error             `json:"-"`
}

// RunStreaming starts a run in the background and returns its events.
// Tool calls always run sequentially. The channel closes after the terminal
// event; the caller must drain it or cancel ctx.
func (e *Engine) RunStreaming(ctx context.Context, msg unifiedllm.Message, tc *tool.ToolContext) <-chan StreamEvent {
	s := e.newState(msg, tc, nil)
	em := newEmitter(s.runID, 64)
	s.emit = func(ev StreamEvent) { em.emit(ctx, ev) }

	go func() {
		defer em.close()
		for {
			if out := s.advance(ctx); out == nil || out.Terminal() {
				return
			}
		}
	}()
	return em.events()
}

// emitter delivers events to the consumer of one streaming run. Emit blocks
// while the buffer is full until ctx is done.
type emitter struct {
	runID  string
	ch     chan StreamEvent
	closed bool
	mu     sync.Mutex
}

func newEmitter(runID string, bufferSize int) *emitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &emitter{runID: runID, ch: make(chan StreamEvent, bufferSize)}
}

func (em *emitter) emit(ctx context.Context, ev StreamEvent) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}
	ev.RunID = em.runID
	ev.Timestamp = time.Now()
	select {
	case em.ch <- ev:
	case <-ctx.Done():
		// The terminal event must still arrive when there is room.
		select {
		case em.ch <- ev:
		default:
		}
	}
}

func (em *emitter) events() <-chan StreamEvent {
	return em.ch
}

// close is safe to call more than once.
func (em *emitter) close() {
	em.mu.Lock()
	defer em.mu.Unlock()
	if !em.closed {
		em.closed = true
		close(em.ch)
	}
}

// send emits ev when the run is streaming.
func (s *state) send(ev StreamEvent) {
	if s.emit != nil {
		s.emit(ev)
	}
}

// forward relays backend deltas while a streamed model call is in flight.
func (s *state) forward(turn int, ev unifiedllm.StreamEvent) {
	switch ev.Type {
	case unifiedllm.TextDelta:
		if ev.Delta != "" {
			s.send(StreamEvent{Kind: StreamTextDelta, Turn: turn, Delta: ev.Delta})
		}
	case unifiedllm.ReasoningDelta:
		if ev.ReasoningDelta != "" {
			s.send(StreamEvent{Kind: StreamReasoningDelta, Turn: turn, Delta: ev.ReasoningDelta})
		}
	}
}
