package agentloop

import (
	"encoding/json"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// OutcomeKind discriminates TurnOutcome variants.
type OutcomeKind string

const (
	OutcomeToolsExecuted      OutcomeKind = "tools_executed"
	OutcomeFinalResponse      OutcomeKind = "final_response"
	OutcomeCompactionOccurred OutcomeKind = "compaction_occurred"
	OutcomeLimitReached       OutcomeKind = "limit_reached"
	OutcomeError              OutcomeKind = "error"
)

// TurnOutcome is what one loop iteration produced. It is one of
// *ToolsExecuted, *FinalResponse, *CompactionOccurred, *LimitReached or
// *ErrorOutcome.
type TurnOutcome interface {
	Kind() OutcomeKind
	// Terminal reports whether the run ends with this outcome.
	Terminal() bool
}

// ToolResult is one folded tool outcome.
type ToolResult struct {
	CallID     string           `json:"call_id"`
	Name       string           `json:"name"`
	Content    string           `json:"content"`
	Structured json.RawMessage  `json:"structured,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	Usage      unifiedllm.Usage `json:"usage"`
}

// ToolsExecuted reports a turn whose tool calls ran and were folded into
// history. Results are in request order.
type ToolsExecuted struct {
	Turn    int          `json:"turn"`
	Calls   []tool.Call  `json:"calls"`
	Results []ToolResult `json:"results"`
}

// FinalResponse is the successful end of a run.
type FinalResponse struct {
	Text       string                `json:"text"`
	Messages   []unifiedllm.Message  `json:"messages"`
	Usage      unifiedllm.Usage      `json:"usage"`
	TurnCount  int                   `json:"turn_count"`
	StopReason unifiedllm.StopReason `json:"stop_reason"`
}

// CompactionOccurred reports that history was replaced by a shorter one,
// either by the context strategy or by a server-side compaction.
type CompactionOccurred struct {
	BeforeTokens int  `json:"before_tokens"`
	AfterTokens  int  `json:"after_tokens"`
	Server       bool `json:"server,omitempty"`
}

// LimitReached ends a run that hit its turn ceiling or a usage limit.
type LimitReached struct {
	Limit     string           `json:"limit"`
	Message   string           `json:"message"`
	Usage     unifiedllm.Usage `json:"usage"`
	TurnCount int              `json:"turn_count"`
}

// Err returns the limit as a *LoopError.
func (l *LimitReached) Err() error {
	return limitError(l.Limit, l.Message)
}

// ErrorOutcome ends a run with a terminal error.
type ErrorOutcome struct {
	Err *LoopError
}

func (*ToolsExecuted) Kind() OutcomeKind      { return OutcomeToolsExecuted }
func (*FinalResponse) Kind() OutcomeKind      { return OutcomeFinalResponse }
func (*CompactionOccurred) Kind() OutcomeKind { return OutcomeCompactionOccurred }
func (*LimitReached) Kind() OutcomeKind       { return OutcomeLimitReached }
func (*ErrorOutcome) Kind() OutcomeKind       { return OutcomeError }

func (*ToolsExecuted) Terminal() bool      { return false }
func (*FinalResponse) Terminal() bool      { return true }
func (*CompactionOccurred) Terminal() bool { return false }
func (*LimitReached) Terminal() bool       { return true }
func (*ErrorOutcome) Terminal() bool       { return true }

// outcomeResult maps a terminal outcome to Run's return values.
func outcomeResult(o TurnOutcome) (*FinalResponse, error) {
	switch v := o.(type) {
	case *FinalResponse:
		return v, nil
	case *LimitReached:
		return nil, v.Err()
	case *ErrorOutcome:
		return nil, v.Err
	default:
		return nil, &LoopError{Kind: KindContext, Message: "run ended without a terminal outcome"}
	}
}
