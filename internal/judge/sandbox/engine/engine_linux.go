//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/security"
	"judged/internal/judge/sandbox/spec"
	appErr "judged/pkg/errors"
	"judged/pkg/utils/logger"

	"go.uber.org/zap"
)

// helperSetupExitCode is reserved by the sandbox-init helper for
// failures before exec. A judged program exiting with this code on its
// own is indistinguishable, matching the shell convention for
// "command not found".
const helperSetupExitCode = 127

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, appErr.ValidationError("cgroup_root", "required")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	prof, err := security.Resolve(runSpec.SeccompRule)
	if err != nil {
		return result.RunResult{}, err
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if e.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createRunCgroup(e.cfg.CgroupRoot)
		if err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxError, "create cgroup failed")
		}
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			cgroupCleanup()
			return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxError, "apply cgroup limits failed")
		}
	}
	defer cgroupCleanup()

	stdinPipe, err := jsonToPipe(initRequest{
		RunSpec:       runSpec,
		Seccomp:       prof,
		EnableSeccomp: e.cfg.EnableSeccomp && !prof.Unrestricted,
	})
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxError, "encode init request failed")
	}
	defer stdinPipe.Close()

	cmd := exec.CommandContext(ctx, e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(prof, e.cfg.EnableNamespaces)
	cmd.Stdin = stdinPipe

	// Setup errors surface here; once the helper redirects IO, fd 2
	// belongs to the judged program's stderr file.
	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxError, "start sandbox helper failed")
	}

	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	timedOut := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if wallLimit := durationFromMs(runSpec.Limits.RealTimeMs); wallLimit > 0 {
			wallTimer = time.After(wallLimit)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut <- struct{}{}
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	wallMs := time.Since(start).Milliseconds()

	state := cmd.ProcessState
	if state == nil {
		return result.RunResult{}, appErr.Wrapf(waitErr, appErr.SandboxError, "sandbox helper did not run")
	}

	wasTimedOut := false
	select {
	case <-timedOut:
		wasTimedOut = true
	default:
	}

	sig := 0
	exitCode := state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig = int(ws.Signal())
		exitCode = 0
	}

	if exitCode == helperSetupExitCode && helperStderr.Len() > 0 {
		return result.RunResult{}, appErr.Newf(appErr.SandboxError, "sandbox setup failed: %s", helperStderr.String())
	}

	cpuMs := cpuTimeMs(state)
	if cgroupPath != "" {
		if v, err := cgroupCPUTimeMs(cgroupPath); err == nil && v > cpuMs {
			cpuMs = v
		}
	}
	memBytes := memoryPeakBytes(cgroupPath, state)
	oom := wasOomKilled(cgroupPath)

	res := result.RunResult{
		CPUTimeMs:   cpuMs,
		RealTimeMs:  wallMs,
		MemoryBytes: memBytes,
		Signal:      sig,
		ExitCode:    exitCode,
	}
	res.Status, res.OutputTruncated = discriminate(res, runSpec.Limits, wasTimedOut, oom)
	// Limit kills are reported as the limit category, not as the
	// signal that delivered them.
	if res.Status != result.StatusSignaled {
		res.Signal = 0
	}
	if res.Status != result.StatusNormal {
		res.ExitCode = 0
	}
	return res, nil
}

// discriminate resolves the mutually exclusive termination cause.
// Engine-imposed limit kills are delivered as signals but reported as
// the limit category.
func discriminate(res result.RunResult, limits spec.ResourceLimit, wasTimedOut, oomKilled bool) (result.Status, bool) {
	truncated := res.Signal == int(syscall.SIGXFSZ)

	cpuExceeded := limits.CPUTimeMs > 0 &&
		(res.CPUTimeMs >= limits.CPUTimeMs || res.Signal == int(syscall.SIGXCPU))
	realExceeded := wasTimedOut || (limits.RealTimeMs > 0 && res.RealTimeMs >= limits.RealTimeMs)
	memExceeded := oomKilled || (limits.MemoryBytes > 0 && res.MemoryBytes > limits.MemoryBytes)

	switch {
	case cpuExceeded:
		return result.StatusCPULimit, truncated
	case realExceeded:
		return result.StatusRealLimit, truncated
	case memExceeded:
		return result.StatusMemoryLimit, truncated
	case res.Signal != 0:
		return result.StatusSignaled, truncated
	default:
		return result.StatusNormal, truncated
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if len(runSpec.Cmd) == 0 {
		return appErr.ValidationError("cmd", "required")
	}
	return nil
}

func jsonToPipe(req initRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func buildSysProcAttr(prof security.Profile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUSER)
	if !prof.AllowNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
