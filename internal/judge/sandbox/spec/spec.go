// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
// Times are in milliseconds, sizes in bytes. Zero means unlimited.
type ResourceLimit struct {
	CPUTimeMs   int64
	RealTimeMs  int64
	MemoryBytes int64
	// MemoryCheckOnly skips in-run memory enforcement; peak usage is
	// still measured and judged after the process exits.
	MemoryCheckOnly bool
	StackBytes      int64
	OutputBytes     int64
	PIDs            int64
}

// RunSpec is the unified execution specification for one task.
type RunSpec struct {
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	// SeccompRule names a compiled-in syscall profile, empty means
	// unrestricted.
	SeccompRule string
	Limits      ResourceLimit
}
