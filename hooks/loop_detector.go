package hooks

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// DefaultLoopWindow is the number of recent tool calls LoopDetector
// inspects.
const DefaultLoopWindow = 10

// LoopDetector skips a tool call when, together with the calls before it,
// the last window calls form a repeating pattern of length 1, 2 or 3. A
// call is identified by its name and a hash of its arguments.
type LoopDetector struct {
	window int
	recent map[string][]string // run ID -> signatures, oldest first
	mu     sync.Mutex
}

// NewLoopDetector creates a detector over window calls. window <= 0 uses
// DefaultLoopWindow.
func NewLoopDetector(window int) *LoopDetector {
	if window <= 0 {
		window = DefaultLoopWindow
	}
	return &LoopDetector{window: window, recent: make(map[string][]string)}
}

// OnEvent implements Hook.
func (d *LoopDetector) OnEvent(_ context.Context, ev Event) (Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Point {
	case PointLoopExit:
		delete(d.recent, ev.RunID)
	case PointPreToolExecution:
		if ev.ToolCall == nil {
			break
		}
		sigs := append(d.recent[ev.RunID], callSignature(ev.ToolCall.Name, ev.ToolCall.Input))
		if len(sigs) > d.window {
			sigs = sigs[len(sigs)-d.window:]
		}
		d.recent[ev.RunID] = sigs
		if detectLoop(sigs, d.window) {
			return Skip(fmt.Sprintf(
				"loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.",
				d.window)), nil
		}
	}
	return Continue(), nil
}

func callSignature(name string, input []byte) string {
	sum := blake3.Sum256(input)
	return name + ":" + hex.EncodeToString(sum[:8])
}

// detectLoop reports whether the last window signatures repeat a pattern
// of length 1, 2 or 3.
func detectLoop(sigs []string, window int) bool {
	if len(sigs) < window {
		return false
	}
	sigs = sigs[len(sigs)-window:]
	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		matched := true
		for i := patternLen; i < window && matched; i++ {
			if sigs[i] != sigs[i%patternLen] {
				matched = false
			}
		}
		if matched {
			return true
		}
	}
	return false
}
