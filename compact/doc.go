// Package compact decides when a conversation history has outgrown its
// token budget and how to shrink it.
//
// A Strategy combines three questions the loop asks before every model
// call: how many tokens the history holds (TokenEstimate), whether that is
// too many (ShouldCompact), and what a smaller history looks like
// (Compact). Every strategy keeps system messages and never leaves a tool
// result without the assistant message that requested it.
package compact
