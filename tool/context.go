package tool

import (
	"sync"

	"github.com/google/uuid"
)

// CancelSignal is a shared, externally settable cancellation flag. Once
// cancelled it stays cancelled. The loop reads it at fixed checkpoints and
// tools may poll it to stop early. The zero value is an unset signal.
type CancelSignal struct {
	mu        sync.Mutex
	done      chan struct{}
	cancelled bool
}

// NewCancelSignal returns an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{}
}

// Cancel sets the signal. It is safe to call more than once.
func (c *CancelSignal) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	if c.done == nil {
		c.done = make(chan struct{})
	}
	close(c.done)
}

// IsCancelled reports whether Cancel has been called. A nil signal is never
// cancelled.
func (c *CancelSignal) IsCancelled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Done returns a channel closed on cancellation. A nil signal returns nil,
// which blocks forever in a select.
func (c *CancelSignal) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

// ProgressReporter receives incremental progress from long-running tools.
type ProgressReporter interface {
	Report(progress, total float64, message string)
}

// ProgressFunc adapts a function into a ProgressReporter.
type ProgressFunc func(progress, total float64, message string)

// Report implements ProgressReporter.
func (f ProgressFunc) Report(progress, total float64, message string) { f(progress, total, message) }

// ToolContext is the ambient runtime context handed to every tool call.
type ToolContext struct {
	Cwd         string
	SessionID   string
	Environment map[string]string
	Cancel      *CancelSignal
	Progress    ProgressReporter
}

// NewToolContext returns a context for cwd with a fresh session ID and
// cancellation signal.
func NewToolContext(cwd string) *ToolContext {
	return &ToolContext{
		Cwd:         cwd,
		SessionID:   uuid.New().String(),
		Environment: map[string]string{},
		Cancel:      NewCancelSignal(),
	}
}

// ReportProgress forwards to the progress reporter when one is attached.
func (tc *ToolContext) ReportProgress(progress, total float64, message string) {
	if tc != nil && tc.Progress != nil {
		tc.Progress.Report(progress, total, message)
	}
}

// Cancelled reports whether the run this context belongs to was cancelled.
func (tc *ToolContext) Cancelled() bool {
	return tc != nil && tc.Cancel.IsCancelled()
}
