// Package result defines raw sandbox execution outcomes.
package result

// Status is the discriminated termination cause of one run. The causes
// are mutually exclusive: an engine-imposed limit kill is reported as
// the limit status even though it is delivered as a signal.
type Status int

const (
	StatusNormal Status = iota
	StatusSignaled
	StatusCPULimit
	StatusRealLimit
	StatusMemoryLimit
)

// String returns a short name for logging.
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusSignaled:
		return "signaled"
	case StatusCPULimit:
		return "cpu_limit"
	case StatusRealLimit:
		return "real_limit"
	case StatusMemoryLimit:
		return "memory_limit"
	}
	return "unknown"
}

// RunResult captures raw sandbox execution data for one process.
type RunResult struct {
	Status      Status
	CPUTimeMs   int64
	RealTimeMs  int64
	MemoryBytes int64
	// Signal is the terminating signal, 0 when the process exited
	// normally or was stopped by a limit.
	Signal   int
	ExitCode int
	// OutputTruncated is set when the process hit the output ceiling.
	OutputTruncated bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK         bool
	ExitCode   int
	CPUTimeMs  int64
	RealTimeMs int64
	// Log holds the captured compiler diagnostics.
	Log string
}
