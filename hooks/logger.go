package hooks

import (
	"context"
	"log/slog"
)

// Logger records every event as a structured log entry and always
// continues.
type Logger struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogger logs events at level. A nil logger uses slog.Default().
func NewLogger(logger *slog.Logger, level slog.Level) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, level: level}
}

// OnEvent implements Hook.
func (l *Logger) OnEvent(ctx context.Context, ev Event) (Action, error) {
	attrs := []slog.Attr{
		slog.String("point", string(ev.Point)),
		slog.String("run_id", ev.RunID),
		slog.Int("turn", ev.Turn),
	}
	switch ev.Point {
	case PointPreModelCall:
		if ev.Request != nil {
			attrs = append(attrs,
				slog.String("model", ev.Request.Model),
				slog.Int("messages", len(ev.Request.Messages)),
				slog.Int("tools", len(ev.Request.Tools)),
			)
		}
	case PointPostModelCall, PointLoopExit:
		if ev.Response != nil {
			attrs = append(attrs,
				slog.String("stop_reason", string(ev.Response.StopReason)),
				slog.Int("tool_calls", len(ev.Response.ToolCalls())),
				slog.Int("input_tokens", ev.Response.Usage.InputTokens),
				slog.Int("output_tokens", ev.Response.Usage.OutputTokens),
			)
		}
	case PointPreToolExecution, PointPostToolExecution:
		if ev.ToolCall != nil {
			attrs = append(attrs,
				slog.String("tool", ev.ToolCall.Name),
				slog.String("call_id", ev.ToolCall.ID),
			)
		}
		if ev.ToolOutput != nil {
			attrs = append(attrs, slog.Bool("is_error", ev.ToolOutput.IsError))
		}
	case PointContextCompaction:
		attrs = append(attrs,
			slog.Int("tokens_before", ev.TokensBefore),
			slog.Int("tokens_after", ev.TokensAfter),
		)
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	l.logger.LogAttrs(ctx, l.level, "agent loop event", attrs...)
	return Continue(), nil
}
