// Package durable routes model and tool calls through an optional
// durability layer.
//
// The loop engine never talks to a backend or a tool registry directly: it
// hands each call to a Router together with ActivityOptions naming the
// call. Local executes immediately. Journaled records every completed call
// in a Store and, when the same run is executed again, answers from the
// journal instead of repeating the work. Replayed and fresh results are
// indistinguishable because fresh results are decoded from the bytes that
// were journaled.
package durable
