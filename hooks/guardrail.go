package hooks

import (
	"context"
	"log/slog"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Verdict is the outcome of a guardrail check.
type Verdict int

const (
	// VerdictPass accepts the text.
	VerdictPass Verdict = iota
	// VerdictTripwire halts the run.
	VerdictTripwire
	// VerdictWarn logs a warning and lets the run continue.
	VerdictWarn
)

// GuardrailResult is a verdict plus an explanation.
type GuardrailResult struct {
	Verdict Verdict
	Message string
}

// Pass accepts the checked text.
func Pass() GuardrailResult { return GuardrailResult{Verdict: VerdictPass} }

// Tripwire halts the run with msg as the reason.
func Tripwire(msg string) GuardrailResult {
	return GuardrailResult{Verdict: VerdictTripwire, Message: msg}
}

// Warn lets the run continue after logging msg.
func Warn(msg string) GuardrailResult { return GuardrailResult{Verdict: VerdictWarn, Message: msg} }

// InputGuardrail checks the latest user input before it reaches the model.
type InputGuardrail interface {
	CheckInput(ctx context.Context, input string) GuardrailResult
}

// OutputGuardrail checks model output before it reaches the caller.
type OutputGuardrail interface {
	CheckOutput(ctx context.Context, output string) GuardrailResult
}

// InputGuardrailFunc adapts a function into an InputGuardrail.
type InputGuardrailFunc func(ctx context.Context, input string) GuardrailResult

// CheckInput implements InputGuardrail.
func (f InputGuardrailFunc) CheckInput(ctx context.Context, input string) GuardrailResult {
	return f(ctx, input)
}

// OutputGuardrailFunc adapts a function into an OutputGuardrail.
type OutputGuardrailFunc func(ctx context.Context, output string) GuardrailResult

// CheckOutput implements OutputGuardrail.
func (f OutputGuardrailFunc) CheckOutput(ctx context.Context, output string) GuardrailResult {
	return f(ctx, output)
}

// Guardrail runs input guardrails before each model call and output
// guardrails after it. The first non-passing result of a phase decides: a
// tripwire terminates the run, a warning is logged and the run continues.
type Guardrail struct {
	inputs  []InputGuardrail
	outputs []OutputGuardrail
	logger  *slog.Logger
}

// NewGuardrail creates an empty Guardrail hook.
func NewGuardrail(logger *slog.Logger) *Guardrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardrail{logger: logger}
}

// Input appends input guardrails.
func (g *Guardrail) Input(gs ...InputGuardrail) *Guardrail {
	g.inputs = append(g.inputs, gs...)
	return g
}

// Output appends output guardrails.
func (g *Guardrail) Output(gs ...OutputGuardrail) *Guardrail {
	g.outputs = append(g.outputs, gs...)
	return g
}

// OnEvent implements Hook.
func (g *Guardrail) OnEvent(ctx context.Context, ev Event) (Action, error) {
	var result GuardrailResult
	switch ev.Point {
	case PointPreModelCall:
		if ev.Request == nil || len(g.inputs) == 0 {
			return Continue(), nil
		}
		input := lastUserText(ev.Request.Messages)
		for _, in := range g.inputs {
			if result = in.CheckInput(ctx, input); result.Verdict != VerdictPass {
				break
			}
		}
	case PointPostModelCall:
		if ev.Response == nil || len(g.outputs) == 0 {
			return Continue(), nil
		}
		output := ev.Response.Text()
		for _, out := range g.outputs {
			if result = out.CheckOutput(ctx, output); result.Verdict != VerdictPass {
				break
			}
		}
	default:
		return Continue(), nil
	}

	switch result.Verdict {
	case VerdictTripwire:
		return Terminate(result.Message), nil
	case VerdictWarn:
		g.logger.Warn("guardrail warning",
			"point", string(ev.Point),
			"run_id", ev.RunID,
			"message", result.Message,
		)
	}
	return Continue(), nil
}

func lastUserText(msgs []unifiedllm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == unifiedllm.RoleUser {
			return msgs[i].TextContent()
		}
	}
	return ""
}
