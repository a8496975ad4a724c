package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// DecisionKind is the verdict of a permission policy.
type DecisionKind string

const (
	DecisionAllow DecisionKind = "allow"
	DecisionDeny  DecisionKind = "deny"
	DecisionAsk   DecisionKind = "ask"
)

// Decision is a policy verdict with an optional reason.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// Allow permits the call.
func Allow() Decision { return Decision{Kind: DecisionAllow} }

// Deny refuses the call.
func Deny(reason string) Decision { return Decision{Kind: DecisionDeny, Reason: reason} }

// Ask defers the call to a human.
func Ask(question string) Decision { return Decision{Kind: DecisionAsk, Reason: question} }

// Policy decides whether a tool call may run.
type Policy interface {
	Check(ctx context.Context, call Call) Decision
}

// PolicyFunc adapts a function into a Policy.
type PolicyFunc func(ctx context.Context, call Call) Decision

// Check implements Policy.
func (f PolicyFunc) Check(ctx context.Context, call Call) Decision { return f(ctx, call) }

// AllowAll permits every call.
var AllowAll Policy = PolicyFunc(func(context.Context, Call) Decision { return Allow() })

// DenyList refuses the named tools and permits the rest.
func DenyList(names ...string) Policy {
	denied := make(map[string]bool, len(names))
	for _, n := range names {
		denied[n] = true
	}
	return PolicyFunc(func(_ context.Context, call Call) Decision {
		if denied[call.Name] {
			return Deny(fmt.Sprintf("tool %q is not allowed", call.Name))
		}
		return Allow()
	})
}

// Rule is one CEL permission rule. When evaluates to a bool over the
// variables tool (string) and input (map); the first rule that matches
// decides.
type Rule struct {
	When     string       `yaml:"when" json:"when"`
	Decision DecisionKind `yaml:"decision" json:"decision"`
	Reason   string       `yaml:"reason,omitempty" json:"reason,omitempty"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// CELPolicy evaluates CEL rules such as
//
//	tool == "shell" && input.command.startsWith("rm ")
//
// against each call. Calls no rule matches get the fallback decision.
type CELPolicy struct {
	rules    []compiledRule
	fallback Decision
}

// NewCELPolicy compiles rules. It fails on syntax errors, unknown
// decisions, or expressions that do not produce a bool.
func NewCELPolicy(rules []Rule, fallback Decision) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	if fallback.Kind == "" {
		fallback = Allow()
	}

	p := &CELPolicy{fallback: fallback}
	for i, rule := range rules {
		switch rule.Decision {
		case DecisionAllow, DecisionDeny, DecisionAsk:
		default:
			return nil, fmt.Errorf("rule %d: unknown decision %q", i, rule.Decision)
		}
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d: %w", i, issues.Err())
		}
		if ot := ast.OutputType(); !ot.IsExactType(cel.BoolType) && !ot.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %d: expression must evaluate to bool, got %v", i, ot)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: rule, prg: prg})
	}
	return p, nil
}

// Check implements Policy. Input that is not a JSON object is presented to
// rules as an empty map. A rule that fails to evaluate denies the call.
func (p *CELPolicy) Check(ctx context.Context, call Call) Decision {
	input, err := ParseArgs(call.Input)
	if err != nil {
		input = map[string]interface{}{}
	}
	vars := map[string]interface{}{"tool": call.Name, "input": input}

	for i, rule := range p.rules {
		out, _, err := rule.prg.ContextEval(ctx, vars)
		if err != nil {
			// A missing key in input is the common case; treat as no match.
			if strings.Contains(err.Error(), "no such key") {
				continue
			}
			return Deny(fmt.Sprintf("permission rule %d failed: %v", i, err))
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("matched rule %q", rule.When)
		}
		return Decision{Kind: rule.Decision, Reason: reason}
	}
	return p.fallback
}
