package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/hooks"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

func TestUsageLimits(t *testing.T) {
	tests := []struct {
		name      string
		limits    UsageLimits
		responses []*unifiedllm.Response
		want      string
		calls     int
	}{
		{
			name:   "request limit checked before the next call",
			limits: UsageLimits{RequestLimit: 1},
			responses: []*unifiedllm.Response{
				toolResponse(usage(1, 1), callData("c1", "calc", `{"expr":"1+1"}`)),
				textResponse("unused", usage(1, 1)),
			},
			want:  LimitRequests,
			calls: 1,
		},
		{
			name:   "tool call limit checked before execution",
			limits: UsageLimits{ToolCallLimit: 1},
			responses: []*unifiedllm.Response{
				toolResponse(usage(1, 1), callData("c1", "calc", `{"expr":"1+1"}`), callData("c2", "calc", `{"expr":"2+2"}`)),
			},
			want:  LimitToolCalls,
			calls: 1,
		},
		{
			name:      "input tokens",
			limits:    UsageLimits{InputTokensLimit: 5},
			responses: []*unifiedllm.Response{textResponse("hi", usage(10, 1))},
			want:      LimitInputTokens,
			calls:     1,
		},
		{
			name:      "output tokens",
			limits:    UsageLimits{OutputTokensLimit: 5},
			responses: []*unifiedllm.Response{textResponse("hi", usage(1, 10))},
			want:      LimitOutputTokens,
			calls:     1,
		},
		{
			name:   "total tokens across turns",
			limits: UsageLimits{TotalTokensLimit: 15},
			responses: []*unifiedllm.Response{
				toolResponse(usage(5, 5), callData("c1", "calc", `{"expr":"1+1"}`)),
				textResponse("2", usage(5, 5)),
			},
			want:  LimitTotalTokens,
			calls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := script(tt.responses...)
			cfg := DefaultConfig()
			cfg.Limits = tt.limits
			_, err := newEngine(backend, calcRegistry(), cfg).RunText(context.Background(), "go", nil)
			var le *LoopError
			if !errors.As(err, &le) || le.Kind != KindLimitReached {
				t.Fatalf("error = %v, want a limit", err)
			}
			if le.Limit != tt.want {
				t.Errorf("limit = %q, want %q", le.Limit, tt.want)
			}
			if backend.calls() != tt.calls {
				t.Errorf("backend calls = %d, want %d", backend.calls(), tt.calls)
			}
		})
	}
}

func TestToolCallLimitLeavesToolsUnexecuted(t *testing.T) {
	var ran atomic.Int32
	r := tool.NewRegistry(tool.WithLogger(quietLogger()))
	r.RegisterFunc("count", "count", nil, func(context.Context, json.RawMessage, *tool.ToolContext) (*tool.Output, error) {
		ran.Add(1)
		return tool.Text("ok"), nil
	})
	cfg := DefaultConfig()
	cfg.Limits.ToolCallLimit = 2
	backend := script(
		toolResponse(usage(1, 1), callData("a", "count", `{}`)),
		toolResponse(usage(1, 1), callData("b", "count", `{}`), callData("c", "count", `{}`)),
	)
	_, err := newEngine(backend, r, cfg).RunText(context.Background(), "go", nil)
	if KindOf(err) != KindLimitReached {
		t.Fatalf("error = %v", err)
	}
	if ran.Load() != 1 {
		t.Errorf("tools ran %d times, want 1", ran.Load())
	}
	if !strings.Contains(err.Error(), "1 calls made, 2 requested") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestPreToolHookSkip(t *testing.T) {
	var ran atomic.Bool
	r := calcRegistry()
	r.RegisterFunc("danger", "danger", nil, func(context.Context, json.RawMessage, *tool.ToolContext) (*tool.Output, error) {
		ran.Store(true)
		return tool.Text("boom"), nil
	})
	d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
	d.Register(hooks.HookFunc(func(_ context.Context, ev hooks.Event) (hooks.Action, error) {
		if ev.ToolCall.Name == "danger" {
			return hooks.Skip("not today"), nil
		}
		return hooks.Continue(), nil
	}), hooks.PointPreToolExecution)

	backend := script(
		toolResponse(usage(1, 1), callData("d", "danger", `{}`), callData("c", "calc", `{"expr":"2+3"}`)),
		textResponse("ok", usage(1, 1)),
	)
	if _, err := newEngine(backend, r, DefaultConfig(), WithHooks(d)).RunText(context.Background(), "go", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran.Load() {
		t.Error("skipped tool ran")
	}
	msg := lastToolMessage(t, backend.request(1))
	skipped := msg.Content[0].ToolResult
	if !skipped.IsError || skipped.Content != "Tool call skipped: not today" {
		t.Errorf("skipped result = %+v", skipped)
	}
	if got := msg.Content[1].ToolResult.Content; got != "5" {
		t.Errorf("calc result = %q", got)
	}
}

func TestHookTermination(t *testing.T) {
	terminateAt := func(p hooks.Point) *hooks.Dispatcher {
		d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
		d.Register(hooks.HookFunc(func(context.Context, hooks.Event) (hooks.Action, error) {
			return hooks.Terminate("stop at " + string(p)), nil
		}), p)
		return d
	}
	tests := []struct {
		point hooks.Point
		calls int
	}{
		{hooks.PointLoopIteration, 0},
		{hooks.PointPreModelCall, 0},
		{hooks.PointPostModelCall, 1},
		{hooks.PointPreToolExecution, 1},
		{hooks.PointPostToolExecution, 1},
		{hooks.PointLoopExit, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.point), func(t *testing.T) {
			backend := script(
				toolResponse(usage(1, 1), callData("c1", "calc", `{"expr":"1+1"}`)),
				textResponse("2", usage(1, 1)),
			)
			_, err := newEngine(backend, calcRegistry(), DefaultConfig(), WithHooks(terminateAt(tt.point))).
				RunText(context.Background(), "go", nil)
			var le *LoopError
			if !errors.As(err, &le) || le.Kind != KindHookTerminated {
				t.Fatalf("error = %v, want hook termination", err)
			}
			if le.Reason != "stop at "+string(tt.point) {
				t.Errorf("reason = %q", le.Reason)
			}
			if backend.calls() != tt.calls {
				t.Errorf("backend calls = %d, want %d", backend.calls(), tt.calls)
			}
		})
	}
}

func TestHookFailureIsIgnored(t *testing.T) {
	d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
	d.Register(hooks.HookFunc(func(context.Context, hooks.Event) (hooks.Action, error) {
		return hooks.Terminate("ignored"), errors.New("hook broke")
	}))
	backend := script(textResponse("fine", usage(1, 1)))
	final, err := newEngine(backend, nil, DefaultConfig(), WithHooks(d)).RunText(context.Background(), "go", nil)
	if err != nil || final.Text != "fine" {
		t.Fatalf("Run = %v, %v", final, err)
	}
}

func TestLoopExitFiresOnceWithTheOutcome(t *testing.T) {
	var mu sync.Mutex
	var exits []hooks.Event
	d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
	d.Register(hooks.HookFunc(func(_ context.Context, ev hooks.Event) (hooks.Action, error) {
		mu.Lock()
		defer mu.Unlock()
		exits = append(exits, ev)
		return hooks.Continue(), nil
	}), hooks.PointLoopExit)

	cfg := DefaultConfig()
	cfg.MaxTurns = 1
	backend := script(toolResponse(usage(2, 3), callData("c1", "calc", `{"expr":"1+1"}`)))
	e := newEngine(backend, calcRegistry(), cfg, WithHooks(d), WithRunID("run-exit"))
	if _, err := e.RunText(context.Background(), "go", nil); KindOf(err) != KindLimitReached {
		t.Fatalf("error = %v", err)
	}
	if len(exits) != 1 {
		t.Fatalf("loop_exit fired %d times", len(exits))
	}
	ev := exits[0]
	if ev.RunID != "run-exit" || ev.Turn != 1 || ev.Usage.TotalTokens != 5 || KindOf(ev.Err) != KindLimitReached {
		t.Errorf("loop_exit event = %+v", ev)
	}
}

// countingStrategy compacts to the newest message once history exceeds
// max messages. Each message counts as ten tokens.
type countingStrategy struct {
	max  int
	fail bool
}

func (s countingStrategy) TokenEstimate(history []unifiedllm.Message) int { return len(history) * 10 }

func (s countingStrategy) ShouldCompact(history []unifiedllm.Message, _ int) bool {
	return len(history) > s.max
}

func (s countingStrategy) Compact(_ context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	if s.fail {
		return nil, errors.New("summarizer unavailable")
	}
	return []unifiedllm.Message{history[len(history)-1]}, nil
}

func TestStrategyCompactionIsItsOwnIteration(t *testing.T) {
	var tokens [2]int
	d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
	d.Register(hooks.HookFunc(func(_ context.Context, ev hooks.Event) (hooks.Action, error) {
		tokens = [2]int{ev.TokensBefore, ev.TokensAfter}
		return hooks.Continue(), nil
	}), hooks.PointContextCompaction)

	backend := script(
		toolResponse(usage(1, 1), callData("c1", "calc", `{"expr":"1+1"}`)),
		textResponse("2", usage(1, 1)),
	)
	st := newEngine(backend, calcRegistry(), DefaultConfig(), WithStrategy(countingStrategy{max: 2}), WithHooks(d)).
		Step(unifiedllm.UserMessage("go"), nil)

	var kinds []OutcomeKind
	for out := range st.Outcomes(context.Background()) {
		kinds = append(kinds, out.Kind())
		if co, ok := out.(*CompactionOccurred); ok {
			if co.Server || co.BeforeTokens != 30 || co.AfterTokens != 10 {
				t.Errorf("compaction = %+v", co)
			}
		}
	}
	want := []OutcomeKind{OutcomeToolsExecuted, OutcomeCompactionOccurred, OutcomeFinalResponse}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("outcomes = %v, want %v", kinds, want)
	}
	if tokens != [2]int{30, 10} {
		t.Errorf("hook saw tokens %v", tokens)
	}
	if n := len(backend.request(1).Messages); n != 1 {
		t.Errorf("second request carried %d messages, want 1", n)
	}
	if st.TurnCount() != 2 {
		t.Errorf("compaction must not count as a turn: %d", st.TurnCount())
	}
}

func TestLoopIterationFiresBeforeCompaction(t *testing.T) {
	var points []hooks.Point
	d := hooks.NewDispatcher(hooks.WithLogger(quietLogger()))
	d.Register(hooks.HookFunc(func(_ context.Context, ev hooks.Event) (hooks.Action, error) {
		points = append(points, ev.Point)
		return hooks.Continue(), nil
	}), hooks.PointLoopIteration, hooks.PointContextCompaction)

	backend := script(
		toolResponse(usage(1, 1), callData("c1", "calc", `{"expr":"1+1"}`)),
		textResponse("2", usage(1, 1)),
	)
	_, err := newEngine(backend, calcRegistry(), DefaultConfig(), WithStrategy(countingStrategy{max: 2}), WithHooks(d)).
		RunText(context.Background(), "go", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []hooks.Point{
		hooks.PointLoopIteration,
		hooks.PointLoopIteration, hooks.PointContextCompaction,
		hooks.PointLoopIteration,
	}
	if !reflect.DeepEqual(points, want) {
		t.Errorf("points = %v, want %v", points, want)
	}
}

func TestCompactionFailureIsContextError(t *testing.T) {
	backend := script(textResponse("unused", usage(1, 1)))
	_, err := newEngine(backend, nil, DefaultConfig(), WithStrategy(countingStrategy{max: 0, fail: true})).
		RunText(context.Background(), "go", nil)
	if KindOf(err) != KindContext {
		t.Fatalf("error = %v, want context failure", err)
	}
	if backend.calls() != 0 {
		t.Errorf("backend calls = %d", backend.calls())
	}
}

// failingBackend fails every call, proving a replay never reached it.
type failingBackend struct{ calls atomic.Int32 }

func (b *failingBackend) Complete(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
	b.calls.Add(1)
	return nil, errors.New("backend must not be called on replay")
}

func (b *failingBackend) Stream(context.Context, unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	b.calls.Add(1)
	return nil, errors.New("backend must not be called on replay")
}

func TestJournaledReplayIsIdempotent(t *testing.T) {
	var toolRuns atomic.Int32
	registry := func() *tool.Registry {
		r := tool.NewRegistry(tool.WithLogger(quietLogger()))
		r.RegisterFunc("side_effect", "side effect", nil, func(context.Context, json.RawMessage, *tool.ToolContext) (*tool.Output, error) {
			toolRuns.Add(1)
			return tool.Text("written"), nil
		})
		return r
	}
	store := durable.NewMemoryStore()
	router := func() durable.Router {
		return durable.NewJournaled(store, "run-1", durable.WithJournalLogger(quietLogger()))
	}

	backend := script(
		toolResponse(usage(3, 2), callData("s1", "side_effect", `{"path":"a.txt"}`)),
		textResponse("done", usage(4, 1)),
	)
	first, err := newEngine(backend, registry(), DefaultConfig(), WithRouter(router()), WithRunID("run-1")).
		RunText(context.Background(), "write it", nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	replayBackend := &failingBackend{}
	second, err := newEngine(replayBackend, registry(), DefaultConfig(), WithRouter(router()), WithRunID("run-1")).
		RunText(context.Background(), "write it", nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayBackend.calls.Load() != 0 {
		t.Errorf("replay reached the backend %d times", replayBackend.calls.Load())
	}
	if toolRuns.Load() != 1 {
		t.Errorf("tool ran %d times, want 1", toolRuns.Load())
	}
	if second.Text != first.Text || second.Usage != first.Usage || second.TurnCount != first.TurnCount {
		t.Errorf("replay %+v != first %+v", second, first)
	}
	if !reflect.DeepEqual(second.Messages, first.Messages) {
		t.Error("replayed history differs from the original")
	}
}

func TestJournaledReplayRejectsDifferentInput(t *testing.T) {
	store := durable.NewMemoryStore()
	backend := script(textResponse("hello", usage(1, 1)))
	run := func(b unifiedllm.Backend, text string) error {
		_, err := newEngine(b, nil, DefaultConfig(), WithRouter(durable.NewJournaled(store, "run-2", durable.WithJournalLogger(quietLogger())))).
			RunText(context.Background(), text, nil)
		return err
	}
	if err := run(backend, "first"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	err := run(&failingBackend{}, "different")
	if KindOf(err) != KindDurability || !errors.Is(err, durable.ErrNonDeterministic) {
		t.Fatalf("error = %v, want a non-deterministic replay", err)
	}
}

func TestRunStreaming(t *testing.T) {
	var active, peak atomic.Int32
	r := tool.NewRegistry(tool.WithLogger(quietLogger()))
	r.RegisterFunc("inspect", "inspect", nil, func(context.Context, json.RawMessage, *tool.ToolContext) (*tool.Output, error) {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		return tool.Text("inspected"), nil
	})
	backend := script(
		toolResponse(usage(1, 1), callData("p1", "inspect", `{}`), callData("p2", "inspect", `{}`)),
		textResponse("all inspected", usage(2, 2)),
	)
	cfg := DefaultConfig()
	cfg.ParallelToolExecution = true
	e := newEngine(backend, r, cfg, WithRunID("stream-run"))

	var (
		text  strings.Builder
		kinds = map[StreamEventKind]int{}
		last  StreamEvent
	)
	for ev := range e.RunStreaming(context.Background(), unifiedllm.UserMessage("go"), nil) {
		kinds[ev.Kind]++
		if ev.RunID != "stream-run" {
			t.Errorf("event run ID = %q", ev.RunID)
		}
		if ev.Kind == StreamTextDelta {
			text.WriteString(ev.Delta)
		}
		last = ev
	}

	if last.Kind != StreamFinal {
		t.Fatalf("last event = %s (%v)", last.Kind, last.Err)
	}
	final, ok := last.Outcome.(*FinalResponse)
	if !ok || final.Text != "all inspected" {
		t.Fatalf("final outcome = %#v", last.Outcome)
	}
	if text.String() != final.Text {
		t.Errorf("deltas %q != final text %q", text.String(), final.Text)
	}
	if kinds[StreamToolCall] != 2 || kinds[StreamToolResult] != 2 || kinds[StreamFinal] != 1 {
		t.Errorf("event counts = %v", kinds)
	}
	if kinds[StreamUsage] < 2 {
		t.Errorf("usage events = %d, want one per model call", kinds[StreamUsage])
	}
	if peak.Load() != 1 {
		t.Errorf("streaming ran %d tools at once, want sequential", peak.Load())
	}
}

func TestRunStreamingEndsWithError(t *testing.T) {
	backend := script()
	backend.err = errors.New("connection reset")
	var last StreamEvent
	n := 0
	for ev := range newEngine(backend, nil, DefaultConfig()).RunStreaming(context.Background(), unifiedllm.UserMessage("go"), nil) {
		last = ev
		n++
	}
	if n != 1 || last.Kind != StreamError || KindOf(last.Err) != KindBackend {
		t.Fatalf("got %d events, last = %+v", n, last)
	}
}

func TestSubAgentTool(t *testing.T) {
	child := newEngine(script(textResponse("child done", usage(5, 5))), nil, DefaultConfig())
	r := tool.NewRegistry(tool.WithLogger(quietLogger()))
	r.Register(NewSubAgentTool(child, "delegate", "Delegate a task"))

	backend := script(
		toolResponse(usage(1, 1), callData("d1", "delegate", `{"task":"summarize the repo"}`)),
		textResponse("parent done", usage(1, 1)),
	)
	final, err := newEngine(backend, r, DefaultConfig()).RunText(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := lastToolMessage(t, backend.request(1)).Content[0].ToolResult
	if res.IsError || res.Content != "child done" {
		t.Errorf("delegate result = %+v", res)
	}
	if final.Usage.TotalTokens != 2+10+2 {
		t.Errorf("parent usage = %+v, want child usage included", final.Usage)
	}
}

func TestSubAgentToolFailuresAreResults(t *testing.T) {
	failing := script()
	failing.err = errors.New("child backend down")
	child := newEngine(failing, nil, DefaultConfig())
	delegate := NewSubAgentTool(child, "delegate", "Delegate a task")

	out, err := delegate.Call(context.Background(), json.RawMessage(`{"task":"x"}`), tool.NewToolContext(""))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !out.IsError || !strings.HasPrefix(out.Content, "Subagent failed after 0 turns") {
		t.Errorf("output = %+v", out)
	}

	nested := context.WithValue(context.Background(), depthKey{}, 1)
	out, err = delegate.Call(nested, json.RawMessage(`{"task":"x"}`), nil)
	if err != nil || !out.IsError || out.Content != "maximum subagent depth (1) reached" {
		t.Errorf("nested call = %+v, %v", out, err)
	}

	_, err = delegate.Call(context.Background(), json.RawMessage(`{}`), nil)
	if tool.KindOf(err) != tool.KindModelRetry {
		t.Errorf("empty task error = %v", err)
	}
}

func TestSubAgentToolPropagatesCancel(t *testing.T) {
	child := newEngine(script(textResponse("unused", usage(1, 1))), nil, DefaultConfig())
	delegate := NewSubAgentTool(child, "delegate", "Delegate a task")
	tc := tool.NewToolContext("")
	tc.Cancel.Cancel()

	done := make(chan error, 1)
	go func() {
		_, err := delegate.Call(context.Background(), json.RawMessage(`{"task":"x"}`), tc)
		done <- err
	}()
	select {
	case err := <-done:
		// The child either sees the forwarded signal before its first turn or
		// completes; both are acceptable, a hang is not.
		if err != nil && tool.KindOf(err) != tool.KindCancelled {
			t.Errorf("error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subagent did not return")
	}
}

func TestTranscript(t *testing.T) {
	history := []unifiedllm.Message{
		unifiedllm.UserMessage("hi"),
		{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{
			unifiedllm.ThinkingPart("let me add", ""),
			unifiedllm.TextPart("calling calc"),
			unifiedllm.ToolCallPart("c1", "calc", json.RawMessage(`{}`)),
		}},
		{Role: unifiedllm.RoleTool, Content: []unifiedllm.ContentPart{
			unifiedllm.ToolResultPart("c1", "4", false),
			unifiedllm.ToolResultPart("c2", "oops", true),
		}},
		{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{unifiedllm.CompactionPart("summary")}},
	}
	turns := Transcript(history)
	if len(turns) != 4 {
		t.Fatalf("got %d turns", len(turns))
	}
	if turns[0].Kind != TurnUser || turns[0].TextContent() != "hi" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	a := turns[1]
	if a.Kind != TurnAssistant || a.Text != "calling calc" || a.Reasoning != "let me add" || len(a.ToolCalls) != 1 {
		t.Errorf("turn 1 = %+v", a)
	}
	if turns[2].Kind != TurnToolResults || turns[2].TextContent() != "4\noops" {
		t.Errorf("turn 2 = %+v", turns[2])
	}
	if turns[3].Kind != TurnCompaction || turns[3].Text != "summary" {
		t.Errorf("turn 3 = %+v", turns[3])
	}
}

func TestPathHierarchy(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + filepath.Join("repo")
	tests := []struct {
		target string
		want   []string
	}{
		{root, []string{root}},
		{filepath.Join(root, "a", "b"), []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}},
		{sep + "elsewhere", []string{sep + "elsewhere"}},
	}
	for _, tt := range tests {
		if got := pathHierarchy(root, tt.target); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("pathHierarchy(%q, %q) = %v, want %v", root, tt.target, got, tt.want)
		}
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("Run make test before finishing."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "GEMINI.md"), []byte("gemini only"), 0o644); err != nil {
		t.Fatal(err)
	}
	prompt := BuildSystemPrompt(context.Background(), PromptOptions{
		Base:     "You are a test agent.",
		Cwd:      dir,
		Model:    "test-model",
		Provider: "anthropic",
		Tools:    calcRegistry().Definitions(),
		Now:      func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) },
	})

	for _, want := range []string{
		"You are a test agent.",
		"<environment>",
		"Working directory: " + dir,
		"Today's date: 2026-01-02",
		"Model: test-model",
		"## calc",
		"Run make test before finishing.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "gemini only") {
		t.Error("prompt loaded another provider's instructions")
	}
	if !strings.HasPrefix(prompt, "You are a test agent.") {
		t.Error("base instructions must come first")
	}
}

func TestDiscoverProjectDocsTruncates(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", MaxProjectDocBytes+100)
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := DiscoverProjectDocs(context.Background(), dir, "")
	if !strings.HasSuffix(docs, projectDocsTruncated) {
		t.Errorf("docs not truncated: %d bytes", len(docs))
	}
}
