package agentloop

import (
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// TurnKind discriminates between transcript entries.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSystem      TurnKind = "system"
	TurnCompaction  TurnKind = "compaction"
)

// Turn is a display-oriented view of one history message.
type Turn struct {
	Kind        TurnKind                    `json:"kind"`
	Text        string                      `json:"text,omitempty"`
	Reasoning   string                      `json:"reasoning,omitempty"`
	ToolCalls   []unifiedllm.ToolCallData   `json:"tool_calls,omitempty"`
	ToolResults []unifiedllm.ToolResultData `json:"tool_results,omitempty"`
}

// Transcript converts a history into turns, one per message. An assistant
// message carrying a server-side compaction summary becomes a compaction
// turn.
func Transcript(history []unifiedllm.Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case unifiedllm.RoleUser:
			turns = append(turns, Turn{Kind: TurnUser, Text: msg.TextContent()})
		case unifiedllm.RoleSystem:
			turns = append(turns, Turn{Kind: TurnSystem, Text: msg.TextContent()})
		case unifiedllm.RoleTool:
			t := Turn{Kind: TurnToolResults}
			for _, part := range msg.Content {
				if part.Kind == unifiedllm.ContentToolResult && part.ToolResult != nil {
					t.ToolResults = append(t.ToolResults, *part.ToolResult)
				}
			}
			turns = append(turns, t)
		case unifiedllm.RoleAssistant:
			if summary, ok := msg.Compaction(); ok {
				turns = append(turns, Turn{Kind: TurnCompaction, Text: summary})
				continue
			}
			resp := unifiedllm.Response{Message: msg}
			turns = append(turns, Turn{
				Kind:      TurnAssistant,
				Text:      msg.TextContent(),
				Reasoning: resp.Reasoning(),
				ToolCalls: msg.ToolCalls(),
			})
		}
	}
	return turns
}

// TextContent returns the text of a turn regardless of its kind. Tool
// results are joined by newlines.
func (t Turn) TextContent() string {
	if t.Kind != TurnToolResults {
		return t.Text
	}
	var text string
	for i, r := range t.ToolResults {
		if i > 0 {
			text += "\n"
		}
		text += r.Content
	}
	return text
}
