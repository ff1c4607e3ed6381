package notify

import "context"

// Run identifies the program run an event belongs to.
type Run struct {
	ID      string
	Program string
}

type runKey struct{}

// WithRun returns a context carrying run.
func WithRun(ctx context.Context, run Run) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

// RunFrom returns the run carried by ctx, if any.
func RunFrom(ctx context.Context) Run {
	r, _ := ctx.Value(runKey{}).(Run)
	return r
}

// Stamp fills ev's run fields from ctx.
func Stamp(ctx context.Context, ev Event) Event {
	r := RunFrom(ctx)
	if ev.RunID == "" {
		ev.RunID = r.ID
	}
	if ev.Program == "" {
		ev.Program = r.Program
	}
	return ev
}
