// Package tool defines the tool contract of the agent loop and the
// middleware pipeline every tool call runs through.
//
// A Registry holds named tools plus two layers of middleware. Global
// middleware (Use) wraps every call; per-tool middleware (UseFor) runs
// inside it; the tool itself is innermost:
//
//	reg := tool.NewRegistry()
//	reg.Register(calc)
//	reg.Use(tool.PermissionChecker(policy), tool.Timeout(30*time.Second))
//	reg.UseFor("shell", tool.OutputFormatter(20000))
//	out, err := reg.Execute(ctx, tool.Call{ID: "c1", Name: "calc", Input: input}, tc)
//
// Each middleware receives a Next continuation and may call it at most
// once. Returning without calling it short-circuits the chain; calling it
// twice panics with ErrNextReused.
//
// Failures are *Error values with a Kind. KindModelRetry and KindTimeout
// are recoverable: the loop shows them to the model as error-flagged
// results. Every other kind ends the run.
package tool
