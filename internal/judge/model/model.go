// Package model defines the wire-level request and response types of
// the judge protocol.
package model

// ResultCode is the final per-test-case classification.
type ResultCode int

const (
	ResultWrongAnswer           ResultCode = -1
	ResultSuccess               ResultCode = 0
	ResultCPUTimeLimitExceeded  ResultCode = 1
	ResultRealTimeLimitExceeded ResultCode = 2
	ResultMemoryLimitExceeded   ResultCode = 3
	ResultRuntimeError          ResultCode = 4
	ResultSystemError           ResultCode = 5
)

// String returns the canonical name of the result code.
func (c ResultCode) String() string {
	switch c {
	case ResultWrongAnswer:
		return "RESULT_WRONG_ANSWER"
	case ResultSuccess:
		return "RESULT_SUCCESS"
	case ResultCPUTimeLimitExceeded:
		return "RESULT_CPU_TIME_LIMIT_EXCEEDED"
	case ResultRealTimeLimitExceeded:
		return "RESULT_REAL_TIME_LIMIT_EXCEEDED"
	case ResultMemoryLimitExceeded:
		return "RESULT_MEMORY_LIMIT_EXCEEDED"
	case ResultRuntimeError:
		return "RESULT_RUNTIME_ERROR"
	case ResultSystemError:
		return "RESULT_SYSTEM_ERROR"
	}
	return "RESULT_UNKNOWN"
}

// ErrorKind categorizes engine-level failures per test case. It is
// distinct from the judged program's own runtime failure, which is
// expressed through ResultCode.
type ErrorKind int

const (
	ErrorNone   ErrorKind = 0
	ErrorSystem ErrorKind = 1
	ErrorSPJ    ErrorKind = 2
)

// CompileConfig describes how to compile one source file.
type CompileConfig struct {
	SrcName        string `json:"src_name"`
	ExeName        string `json:"exe_name"`
	MaxCPUTime     int64  `json:"max_cpu_time"`
	MaxRealTime    int64  `json:"max_real_time"`
	MaxMemory      int64  `json:"max_memory"`
	CompileCommand string `json:"compile_command"`
}

// RunConfig describes how to execute a compiled or interpreted program.
type RunConfig struct {
	Command string `json:"command"`
	// SeccompRule names a compiled-in syscall profile. Empty means
	// unrestricted.
	SeccompRule string   `json:"seccomp_rule"`
	Env         []string `json:"env"`
	// MemoryLimitCheckOnly disables hard memory enforcement for
	// runtimes whose OS-level accounting is unreliable; peak usage is
	// still measured and classified after the run.
	MemoryLimitCheckOnly bool `json:"memory_limit_check_only"`
}

// LanguageConfig bundles the compile and run configuration for one
// language. Compile is nil for interpreted languages.
type LanguageConfig struct {
	Compile *CompileConfig `json:"compile,omitempty"`
	Run     RunConfig      `json:"run"`
}

// TestCase is one inline test case. Output may be empty when an SPJ
// validates the answer instead.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// SpjCompileConfig mirrors CompileConfig for the validator program.
type SpjCompileConfig struct {
	SrcName        string `json:"src_name"`
	ExeName        string `json:"exe_name"`
	MaxCPUTime     int64  `json:"max_cpu_time"`
	MaxRealTime    int64  `json:"max_real_time"`
	MaxMemory      int64  `json:"max_memory"`
	CompileCommand string `json:"compile_command"`
}

// SpjConfig mirrors RunConfig for the validator program. Limits are
// optional; unset values fall back to server-side defaults.
type SpjConfig struct {
	Command     string `json:"command"`
	SeccompRule string `json:"seccomp_rule"`
	MaxCPUTime  int64  `json:"max_cpu_time,omitempty"`
	MaxMemory   int64  `json:"max_memory,omitempty"`
}

// JudgeRequest is the body of the judge operation.
// Exactly one of TestCaseID and TestCases must be set.
type JudgeRequest struct {
	Src            string         `json:"src"`
	LanguageConfig LanguageConfig `json:"language_config"`
	MaxCPUTime     int64          `json:"max_cpu_time"`
	MaxMemory      int64          `json:"max_memory"`
	TestCaseID     string         `json:"test_case_id,omitempty"`
	TestCases      []TestCase     `json:"test_case,omitempty"`
	Output         bool           `json:"output"`

	SpjVersion       string            `json:"spj_version,omitempty"`
	SpjSrc           string            `json:"spj_src,omitempty"`
	SpjCompileConfig *SpjCompileConfig `json:"spj_compile_config,omitempty"`
	SpjConfig        *SpjConfig        `json:"spj_config,omitempty"`
}

// CompileSpjRequest is the body of the compile_spj operation.
type CompileSpjRequest struct {
	Src              string           `json:"src"`
	SpjVersion       string           `json:"spj_version"`
	SpjCompileConfig SpjCompileConfig `json:"spj_compile_config"`
}

// ExecutionResult is the per-test-case judgement.
type ExecutionResult struct {
	CPUTime  int64      `json:"cpu_time"`
	RealTime int64      `json:"real_time"`
	Memory   int64      `json:"memory"`
	Signal   int        `json:"signal"`
	ExitCode int        `json:"exit_code"`
	Error    ErrorKind  `json:"error"`
	Result   ResultCode `json:"result"`
	TestCase string     `json:"test_case"`

	Output     string `json:"output,omitempty"`
	OutputHash string `json:"output_hash,omitempty"`
}

// ServerStatus is the ping response payload, recomputed on every probe.
type ServerStatus struct {
	Action   string  `json:"action"`
	Hostname string  `json:"hostname"`
	CPU      float64 `json:"cpu"`
	CPUCore  int     `json:"cpu_core"`
	Memory   float64 `json:"memory"`
	Version  string  `json:"version"`
}
