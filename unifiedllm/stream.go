package unifiedllm

import (
	"context"
	"strings"
)

// StreamAccumulator collects stream events into a complete Response.
type StreamAccumulator struct {
	text       strings.Builder
	reasoning  strings.Builder
	toolCalls  []ToolCallData
	stopReason StopReason
	usage      *Usage
	response   *Response
	err        error
}

// NewStreamAccumulator creates a new StreamAccumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// Process ingests a single stream event.
func (sa *StreamAccumulator) Process(event StreamEvent) {
	switch event.Type {
	case TextDelta:
		sa.text.WriteString(event.Delta)
	case ReasoningDelta:
		sa.reasoning.WriteString(event.ReasoningDelta)
	case ToolCallEnd:
		if event.ToolCall != nil {
			sa.toolCalls = append(sa.toolCalls, *event.ToolCall)
		}
	case StreamFinish:
		sa.stopReason = event.StopReason
		sa.usage = event.Usage
		sa.response = event.Response
	case StreamError:
		sa.err = event.Error
	}
}

// Err returns the error carried by a StreamError event, if any.
func (sa *StreamAccumulator) Err() error {
	return sa.err
}

// Response returns the finish event's response when the backend sent one,
// otherwise a response assembled from the deltas seen so far.
func (sa *StreamAccumulator) Response() *Response {
	if sa.response != nil {
		return sa.response
	}
	var content []ContentPart
	if sa.reasoning.Len() > 0 {
		content = append(content, ThinkingPart(sa.reasoning.String(), ""))
	}
	if sa.text.Len() > 0 {
		content = append(content, TextPart(sa.text.String()))
	}
	for _, tc := range sa.toolCalls {
		content = append(content, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}

	stop := sa.stopReason
	if stop == "" {
		stop = StopEndTurn
		if len(sa.toolCalls) > 0 {
			stop = StopToolUse
		}
	}

	usage := Usage{}
	if sa.usage != nil {
		usage = *sa.usage
	}

	return &Response{
		Message:    Message{Role: RoleAssistant, Content: content},
		StopReason: stop,
		Usage:      usage,
	}
}

// ResponseEvents replays a complete response as the event sequence a
// streaming backend would have produced. The channel is buffered to hold the
// whole sequence, so it never blocks the caller.
func ResponseEvents(resp *Response) <-chan StreamEvent {
	var events []StreamEvent
	events = append(events, StreamEvent{Type: StreamStart})
	if r := resp.Reasoning(); r != "" {
		events = append(events,
			StreamEvent{Type: ReasoningStart},
			StreamEvent{Type: ReasoningDelta, ReasoningDelta: r},
			StreamEvent{Type: ReasoningEnd})
	}
	if text := resp.Text(); text != "" {
		events = append(events,
			StreamEvent{Type: TextStart, TextID: "text_0"},
			StreamEvent{Type: TextDelta, Delta: text, TextID: "text_0"},
			StreamEvent{Type: TextEnd, TextID: "text_0"})
	}
	for _, tc := range resp.ToolCalls() {
		call := tc
		events = append(events,
			StreamEvent{Type: ToolCallStart, ToolCall: &call},
			StreamEvent{Type: ToolCallEnd, ToolCall: &call})
	}
	usage := resp.Usage
	events = append(events, StreamEvent{
		Type:       StreamFinish,
		StopReason: resp.StopReason,
		Usage:      &usage,
		Response:   resp,
	})

	ch := make(chan StreamEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

// Collect drains a stream, calling onEvent for each event, and returns the
// assembled response. It stops early when ctx is done.
func Collect(ctx context.Context, events <-chan StreamEvent, onEvent func(StreamEvent)) (*Response, error) {
	acc := NewStreamAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil, &AbortError{SDKError: SDKError{Message: "stream cancelled", Cause: ctx.Err()}}
		case event, ok := <-events:
			if !ok {
				if err := acc.Err(); err != nil {
					return nil, err
				}
				return acc.Response(), nil
			}
			if onEvent != nil {
				onEvent(event)
			}
			acc.Process(event)
			if event.Type == StreamError {
				if event.Error != nil {
					return nil, event.Error
				}
				return nil, &StreamProtocolError{SDKError: SDKError{Message: "stream reported an error without details"}}
			}
		}
	}
}
