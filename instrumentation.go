package scscp

// Instrumentation receives lifecycle events from a Session for metrics or
// tracing. Every method must be safe to call from arbitrary goroutines: a
// session fires events from the goroutine running Run, and one
// Instrumentation may be shared by many concurrent sessions.
type Instrumentation interface {
	TaskStarted()
	TaskEnded()
	FrameWritten()
}

type noopInstrumentation struct{}

func (noopInstrumentation) TaskStarted()  {}
func (noopInstrumentation) TaskEnded()    {}
func (noopInstrumentation) FrameWritten() {}
