// Package runner implements the compile and run workflows on top of
// the sandbox engine.
package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"judged/internal/judge/lang"
	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/engine"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/spec"
	appErr "judged/pkg/errors"
)

const (
	compileOutName = "compile.out"
	compileLogName = "compile.log"
	userOutName    = "user.out"
	userErrName    = "user.err"

	defaultStackBytes = 128 * 1024 * 1024

	// Wall-clock ceiling for runs that only configure a CPU ceiling.
	realTimeFactor = 3
)

// Runner drives single compile or run tasks in private work
// directories.
type Runner struct {
	eng engine.Engine
	// maxCaptureBytes caps how much of any captured file is read back.
	maxCaptureBytes int64
}

// New creates a runner backed by the sandbox engine.
func New(eng engine.Engine, maxCaptureBytes int64) *Runner {
	if maxCaptureBytes <= 0 {
		maxCaptureBytes = 1 << 20
	}
	return &Runner{eng: eng, maxCaptureBytes: maxCaptureBytes}
}

// CompileRequest describes one compilation task.
type CompileRequest struct {
	WorkDir string
	// Source is the program text to compile.
	Source string
	Config model.CompileConfig
}

// Compile writes the source into the work directory, runs the
// configured compile command under its own limits and returns the
// produced executable path. The captured diagnostics are returned in
// the CompileResult whether or not compilation succeeded.
func (r *Runner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, string, error) {
	if req.WorkDir == "" {
		return result.CompileResult{}, "", appErr.ValidationError("work_dir", "required")
	}
	srcPath := filepath.Join(req.WorkDir, req.Config.SrcName)
	exePath := filepath.Join(req.WorkDir, req.Config.ExeName)
	if err := os.WriteFile(srcPath, []byte(req.Source), 0644); err != nil {
		return result.CompileResult{}, "", appErr.Wrapf(err, appErr.JudgeClientError, "write source failed")
	}

	cmd, err := lang.ExpandCommand(req.Config.CompileCommand, map[string]string{
		lang.SlotSrcPath:   srcPath,
		lang.SlotExePath:   exePath,
		lang.SlotExeDir:    req.WorkDir,
		lang.SlotMaxMemory: strconv.FormatInt(req.Config.MaxMemory, 10),
	})
	if err != nil {
		return result.CompileResult{}, "", err
	}

	runSpec := spec.RunSpec{
		WorkDir:    req.WorkDir,
		Cmd:        cmd,
		StdoutPath: filepath.Join(req.WorkDir, compileOutName),
		StderrPath: filepath.Join(req.WorkDir, compileLogName),
		// Compilers run unrestricted; only the judged program gets a
		// syscall profile.
		SeccompRule: "",
		Limits: spec.ResourceLimit{
			CPUTimeMs:   req.Config.MaxCPUTime,
			RealTimeMs:  req.Config.MaxRealTime,
			MemoryBytes: req.Config.MaxMemory,
			StackBytes:  defaultStackBytes,
		},
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	log := r.readCaptured(runSpec.StderrPath)
	if out := r.readCaptured(runSpec.StdoutPath); out != "" {
		if log != "" {
			log += "\n"
		}
		log += out
	}
	compileRes := result.CompileResult{
		OK:         runErr == nil && runRes.Status == result.StatusNormal && runRes.ExitCode == 0,
		ExitCode:   runRes.ExitCode,
		CPUTimeMs:  runRes.CPUTimeMs,
		RealTimeMs: runRes.RealTimeMs,
		Log:        log,
	}
	if runErr != nil {
		return compileRes, "", runErr
	}
	if compileRes.OK {
		if _, err := os.Stat(exePath); err != nil {
			compileRes.OK = false
			if compileRes.Log == "" {
				compileRes.Log = "compiler exited successfully but produced no executable"
			}
		}
	}
	if !compileRes.OK && compileRes.Log == "" {
		compileRes.Log = statusMessage(runRes)
	}
	return compileRes, exePath, nil
}

// RunRequest describes one execution task against a single input.
type RunRequest struct {
	WorkDir   string
	ExePath   string
	Config    model.RunConfig
	InputPath string

	MaxCPUTimeMs   int64
	MaxMemoryBytes int64
	MaxOutputBytes int64
}

// Run executes the program against the input and returns the raw
// outcome plus the path of the captured output stream.
func (r *Runner) Run(ctx context.Context, req RunRequest) (result.RunResult, string, error) {
	if req.WorkDir == "" {
		return result.RunResult{}, "", appErr.ValidationError("work_dir", "required")
	}
	cmd, err := lang.ExpandCommand(req.Config.Command, map[string]string{
		lang.SlotExePath:   req.ExePath,
		lang.SlotExeDir:    filepath.Dir(req.ExePath),
		lang.SlotMaxMemory: strconv.FormatInt(req.MaxMemoryBytes, 10),
	})
	if err != nil {
		return result.RunResult{}, "", err
	}

	outPath := filepath.Join(req.WorkDir, userOutName)
	runSpec := spec.RunSpec{
		WorkDir:     req.WorkDir,
		Cmd:         cmd,
		Env:         req.Config.Env,
		StdinPath:   req.InputPath,
		StdoutPath:  outPath,
		StderrPath:  filepath.Join(req.WorkDir, userErrName),
		SeccompRule: req.Config.SeccompRule,
		Limits: spec.ResourceLimit{
			CPUTimeMs:       req.MaxCPUTimeMs,
			RealTimeMs:      req.MaxCPUTimeMs * realTimeFactor,
			MemoryBytes:     req.MaxMemoryBytes,
			MemoryCheckOnly: req.Config.MemoryLimitCheckOnly,
			StackBytes:      defaultStackBytes,
			OutputBytes:     req.MaxOutputBytes,
		},
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		return result.RunResult{}, outPath, runErr
	}
	if !runRes.OutputTruncated && req.MaxOutputBytes > 0 {
		if info, err := os.Stat(outPath); err == nil && info.Size() >= req.MaxOutputBytes {
			runRes.OutputTruncated = true
		}
	}
	return runRes, outPath, nil
}

// ReadFileLimited reads at most maxBytes from path. A missing file
// reads as empty.
func ReadFileLimited(path string, maxBytes int64) []byte {
	if path == "" || maxBytes <= 0 {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil
	}
	return data
}

func (r *Runner) readCaptured(path string) string {
	return strings.TrimRight(string(ReadFileLimited(path, r.maxCaptureBytes)), "\n")
}

func statusMessage(res result.RunResult) string {
	switch res.Status {
	case result.StatusCPULimit, result.StatusRealLimit:
		return "compiler time limit exceeded"
	case result.StatusMemoryLimit:
		return "compiler memory limit exceeded"
	case result.StatusSignaled:
		return "compiler terminated by signal " + strconv.Itoa(res.Signal)
	}
	return "compiler exited with code " + strconv.Itoa(res.ExitCode)
}
