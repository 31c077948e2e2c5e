package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/sandbox/spec"
	"judged/internal/judge/spj"
	appErr "judged/pkg/errors"
)

// fakeEngine simulates sandbox runs. Compile runs are recognized by
// their capture file name; the produced executable is the argument
// following -o in the expanded command.
type fakeEngine struct {
	compileExit int
	compileLog  string
	// transform produces the program's stdout from its stdin.
	transform func(in []byte) []byte
	// runOutcome overrides the run result when set.
	runOutcome func(runSpec spec.RunSpec) (result.RunResult, error)
}

func (f *fakeEngine) Run(_ context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if filepath.Base(runSpec.StderrPath) == "compile.log" {
		if f.compileLog != "" {
			if err := os.WriteFile(runSpec.StderrPath, []byte(f.compileLog), 0644); err != nil {
				return result.RunResult{}, err
			}
		}
		if f.compileExit == 0 {
			for i, arg := range runSpec.Cmd {
				if arg == "-o" && i+1 < len(runSpec.Cmd) {
					if err := os.WriteFile(runSpec.Cmd[i+1], []byte("#!binary"), 0755); err != nil {
						return result.RunResult{}, err
					}
				}
			}
		}
		return result.RunResult{Status: result.StatusNormal, ExitCode: f.compileExit}, nil
	}

	if f.runOutcome != nil {
		return f.runOutcome(runSpec)
	}
	input, err := os.ReadFile(runSpec.StdinPath)
	if err != nil {
		return result.RunResult{}, err
	}
	out := input
	if f.transform != nil {
		out = f.transform(input)
	}
	if err := os.WriteFile(runSpec.StdoutPath, out, 0644); err != nil {
		return result.RunResult{}, err
	}
	return result.RunResult{Status: result.StatusNormal, CPUTimeMs: 10, RealTimeMs: 12, MemoryBytes: 1 << 20}, nil
}

func newTestService(t *testing.T, eng *fakeEngine) *Service {
	t.Helper()
	run := runner.New(eng, 1<<20)
	mgr := spj.NewManager(spj.NewRunner(run, eng), t.TempDir(), 4)
	return New(Config{
		WorkRoot:       t.TempDir(),
		MaxConcurrent:  2,
		MaxCPUTimeMs:   10_000,
		MaxMemoryBytes: 1 << 30,
		MaxOutputBytes: 1 << 20,
	}, run, mgr, nil)
}

func interpretedRequest(cases []model.TestCase) model.JudgeRequest {
	return model.JudgeRequest{
		Src: "print(input())",
		LanguageConfig: model.LanguageConfig{
			Run: model.RunConfig{Command: "/usr/bin/python3 {exe_path}"},
		},
		MaxCPUTime: 1000,
		MaxMemory:  256 * 1024 * 1024,
		TestCases:  cases,
	}
}

func TestJudgeRequiresExactlyOneTestCaseSource(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})

	req := interpretedRequest([]model.TestCase{{Input: "1", Output: "1"}})
	req.TestCaseID = "prepared-set"
	if _, err := svc.Judge(context.Background(), req); !appErr.Is(err, appErr.InvalidRequest) {
		t.Fatalf("both sources set: got %v, want InvalidRequest", err)
	}

	req = interpretedRequest(nil)
	if _, err := svc.Judge(context.Background(), req); !appErr.Is(err, appErr.InvalidRequest) {
		t.Fatalf("no sources set: got %v, want InvalidRequest", err)
	}
}

func TestJudgeRejectsLimitsAboveCeiling(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})
	req := interpretedRequest([]model.TestCase{{Input: "1", Output: "1"}})
	req.MaxCPUTime = 60_000
	if _, err := svc.Judge(context.Background(), req); !appErr.Is(err, appErr.InvalidRequest) {
		t.Fatalf("ceiling breach: got %v, want InvalidRequest", err)
	}
}

func TestJudgeKeepsInputOrderAndClassifiesPerCase(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})
	req := interpretedRequest([]model.TestCase{
		{Input: "alpha\n", Output: "alpha\n"},
		{Input: "beta\n", Output: "not beta\n"},
		{Input: "gamma\n", Output: "gamma\n"},
	})
	results, err := svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantNames := []string{"1", "2", "3"}
	wantCodes := []model.ResultCode{model.ResultSuccess, model.ResultWrongAnswer, model.ResultSuccess}
	for i := range results {
		if results[i].TestCase != wantNames[i] {
			t.Fatalf("result %d is for case %q, want %q", i, results[i].TestCase, wantNames[i])
		}
		if results[i].Result != wantCodes[i] {
			t.Fatalf("case %s classified %v, want %v", wantNames[i], results[i].Result, wantCodes[i])
		}
	}
}

func TestJudgeCompileFailureShortCircuits(t *testing.T) {
	svc := newTestService(t, &fakeEngine{compileExit: 1, compileLog: "main.c:1: expected ';'"})
	req := model.JudgeRequest{
		Src: "int main(){",
		LanguageConfig: model.LanguageConfig{
			Compile: &model.CompileConfig{
				SrcName:        "main.c",
				ExeName:        "main",
				MaxCPUTime:     3000,
				MaxRealTime:    10000,
				MaxMemory:      256 * 1024 * 1024,
				CompileCommand: "/usr/bin/gcc {src_path} -o {exe_path}",
			},
			Run: model.RunConfig{Command: "{exe_path}"},
		},
		MaxCPUTime: 1000,
		MaxMemory:  256 * 1024 * 1024,
		TestCases:  []model.TestCase{{Input: "1", Output: "1"}},
	}
	results, err := svc.Judge(context.Background(), req)
	if !appErr.Is(err, appErr.CompileError) {
		t.Fatalf("got %v, want CompileError", err)
	}
	if !strings.Contains(err.Error(), "expected ';'") {
		t.Fatalf("compiler diagnostics missing from error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("compile failure must yield zero results, got %d", len(results))
	}
}

func TestJudgeIsolatesPerCaseEngineFaults(t *testing.T) {
	eng := &fakeEngine{}
	eng.runOutcome = func(runSpec spec.RunSpec) (result.RunResult, error) {
		input, err := os.ReadFile(runSpec.StdinPath)
		if err != nil {
			return result.RunResult{}, err
		}
		if strings.Contains(string(input), "poison") {
			return result.RunResult{}, appErr.New(appErr.SandboxError).WithMessage("sandbox failed to start")
		}
		if err := os.WriteFile(runSpec.StdoutPath, input, 0644); err != nil {
			return result.RunResult{}, err
		}
		return result.RunResult{Status: result.StatusNormal}, nil
	}
	svc := newTestService(t, eng)
	req := interpretedRequest([]model.TestCase{
		{Input: "fine\n", Output: "fine\n"},
		{Input: "poison\n", Output: "poison\n"},
		{Input: "fine too\n", Output: "fine too\n"},
	})
	results, err := svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("one broken case must not fail the call: %v", err)
	}
	if results[1].Result != model.ResultSystemError || results[1].Error != model.ErrorSystem {
		t.Fatalf("poisoned case: result=%v error=%v", results[1].Result, results[1].Error)
	}
	for _, i := range []int{0, 2} {
		if results[i].Result != model.ResultSuccess {
			t.Fatalf("sibling case %d was dragged down: %v", i, results[i].Result)
		}
	}
}

func TestJudgePassesThroughLimitVerdicts(t *testing.T) {
	eng := &fakeEngine{}
	eng.runOutcome = func(runSpec spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{Status: result.StatusCPULimit, CPUTimeMs: 1001, RealTimeMs: 1500}, nil
	}
	svc := newTestService(t, eng)
	results, err := svc.Judge(context.Background(), interpretedRequest([]model.TestCase{{Input: "x", Output: "x"}}))
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	if results[0].Result != model.ResultCPUTimeLimitExceeded {
		t.Fatalf("got %v, want CPU time limit exceeded", results[0].Result)
	}
	if results[0].CPUTime != 1001 {
		t.Fatalf("cpu time not propagated: %d", results[0].CPUTime)
	}
}

func TestJudgeReturnsOutputOnlyWhenRequested(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})
	req := interpretedRequest([]model.TestCase{{Input: "echo\n", Output: "echo\n"}})
	results, err := svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	if results[0].Output != "" || results[0].OutputHash != "" {
		t.Fatal("output returned without being requested")
	}

	req.Output = true
	results, err = svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	if results[0].Output != "echo\n" {
		t.Fatalf("output = %q", results[0].Output)
	}
	if results[0].OutputHash == "" {
		t.Fatal("output hash missing")
	}
}

func TestJudgeWallClockStartsAtDispatchNotQueueEntry(t *testing.T) {
	// One run slot forces the three cases to queue behind each other.
	// Each fake run takes runMs measured from the moment the engine is
	// entered, which is after the slot was acquired.
	const runMs = 50
	var running, maxRunning int32
	eng := &fakeEngine{}
	eng.runOutcome = func(runSpec spec.RunSpec) (result.RunResult, error) {
		now := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			prev := atomic.LoadInt32(&maxRunning)
			if now <= prev || atomic.CompareAndSwapInt32(&maxRunning, prev, now) {
				break
			}
		}
		started := time.Now()
		time.Sleep(runMs * time.Millisecond)
		input, err := os.ReadFile(runSpec.StdinPath)
		if err != nil {
			return result.RunResult{}, err
		}
		if err := os.WriteFile(runSpec.StdoutPath, input, 0644); err != nil {
			return result.RunResult{}, err
		}
		return result.RunResult{
			Status:     result.StatusNormal,
			RealTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}
	run := runner.New(eng, 1<<20)
	mgr := spj.NewManager(spj.NewRunner(run, eng), t.TempDir(), 4)
	svc := New(Config{WorkRoot: t.TempDir(), MaxConcurrent: 1, MaxOutputBytes: 1 << 20}, run, mgr, nil)

	results, err := svc.Judge(context.Background(), interpretedRequest([]model.TestCase{
		{Input: "a\n", Output: "a\n"},
		{Input: "b\n", Output: "b\n"},
		{Input: "c\n", Output: "c\n"},
	}))
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Fatalf("observed %d concurrent runs, want 1", got)
	}
	// Measured from queue entry, the last case would carry at least the
	// two earlier runs' wall time on top of its own.
	for i, res := range results {
		if res.RealTime >= 2*runMs {
			t.Fatalf("case %d charged %dms of wall time, queue wait leaked in", i+1, res.RealTime)
		}
	}
}

func TestJudgeCleansUpScratchDirectories(t *testing.T) {
	eng := &fakeEngine{}
	run := runner.New(eng, 1<<20)
	mgr := spj.NewManager(spj.NewRunner(run, eng), t.TempDir(), 4)
	workRoot := t.TempDir()
	svc := New(Config{WorkRoot: workRoot, MaxConcurrent: 2, MaxOutputBytes: 1 << 20}, run, mgr, nil)

	_, err := svc.Judge(context.Background(), interpretedRequest([]model.TestCase{{Input: "a", Output: "a"}}))
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch directories left behind: %d", len(entries))
	}
}
