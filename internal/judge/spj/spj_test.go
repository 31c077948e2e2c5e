package spj

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"judged/internal/judge/lang"
	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/sandbox/spec"
	"judged/internal/judge/verdict"
	appErr "judged/pkg/errors"
)

// fakeEngine counts compiles and produces executables or fixed run
// outcomes.
type fakeEngine struct {
	compiles int
	runExit  int
	runErr   error
	lastRun  spec.RunSpec
}

func (f *fakeEngine) Run(_ context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if filepath.Base(runSpec.StderrPath) == "compile.log" {
		f.compiles++
		for i, arg := range runSpec.Cmd {
			if arg == "-o" && i+1 < len(runSpec.Cmd) {
				if err := os.WriteFile(runSpec.Cmd[i+1], []byte("bin"), 0755); err != nil {
					return result.RunResult{}, err
				}
			}
		}
		return result.RunResult{Status: result.StatusNormal}, nil
	}
	f.lastRun = runSpec
	if f.runErr != nil {
		return result.RunResult{}, f.runErr
	}
	return result.RunResult{Status: result.StatusNormal, ExitCode: f.runExit}, nil
}

func compileConfig() model.SpjCompileConfig {
	return model.SpjCompileConfig{
		SrcName:        "spj.c",
		ExeName:        "spj",
		MaxCPUTime:     3000,
		MaxRealTime:    10000,
		MaxMemory:      256 * 1024 * 1024,
		CompileCommand: "/usr/bin/gcc {src_path} -o {exe_path}",
	}
}

func newManager(t *testing.T, eng *fakeEngine, maxCached int) *Manager {
	t.Helper()
	run := runner.New(eng, 1<<20)
	return NewManager(NewRunner(run, eng), t.TempDir(), maxCached)
}

func TestEnsureCompiledCachesBySourceAndVersion(t *testing.T) {
	eng := &fakeEngine{}
	mgr := newManager(t, eng, 8)

	first, err := mgr.EnsureCompiled(context.Background(), "int main(){}", "1", compileConfig())
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	second, err := mgr.EnsureCompiled(context.Background(), "int main(){}", "1", compileConfig())
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if first != second {
		t.Fatalf("cache returned a different artifact: %q vs %q", first, second)
	}
	if eng.compiles != 1 {
		t.Fatalf("compiled %d times, want 1", eng.compiles)
	}

	// A version bump must compile a fresh binary.
	if _, err := mgr.EnsureCompiled(context.Background(), "int main(){}", "2", compileConfig()); err != nil {
		t.Fatalf("version bump compile failed: %v", err)
	}
	if eng.compiles != 2 {
		t.Fatalf("compiled %d times after version bump, want 2", eng.compiles)
	}
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	eng := &fakeEngine{}
	mgr := newManager(t, eng, 2)

	a, _ := mgr.EnsureCompiled(context.Background(), "src-a", "1", compileConfig())
	if _, err := mgr.EnsureCompiled(context.Background(), "src-b", "1", compileConfig()); err != nil {
		t.Fatalf("compile b failed: %v", err)
	}
	if _, err := mgr.EnsureCompiled(context.Background(), "src-c", "1", compileConfig()); err != nil {
		t.Fatalf("compile c failed: %v", err)
	}
	if mgr.Len() != 2 {
		t.Fatalf("cache holds %d entries, want 2", mgr.Len())
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatal("evicted artifact still on disk")
	}
	// Re-requesting the evicted judge recompiles it.
	if _, err := mgr.EnsureCompiled(context.Background(), "src-a", "1", compileConfig()); err != nil {
		t.Fatalf("recompile after eviction failed: %v", err)
	}
	if eng.compiles != 4 {
		t.Fatalf("compiled %d times, want 4", eng.compiles)
	}
}

func TestRunMapsExitCodesToVerdicts(t *testing.T) {
	cases := []struct {
		exit    int
		want    verdict.SpjVerdict
		wantErr bool
	}{
		{0, verdict.SpjAccepted, false},
		{1, verdict.SpjWrongAnswer, false},
		{2, verdict.SpjFailed, true},
	}
	for _, tc := range cases {
		eng := &fakeEngine{runExit: tc.exit}
		mgr := newManager(t, eng, 4)
		exePath, err := mgr.EnsureCompiled(context.Background(), "src", "1", compileConfig())
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		dir := t.TempDir()
		inPath := filepath.Join(dir, "1.in")
		outPath := filepath.Join(dir, "user.out")
		ansPath := filepath.Join(dir, "1.out")
		for _, p := range []string{inPath, outPath, ansPath} {
			if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
				t.Fatalf("write %s: %v", p, err)
			}
		}
		got, err := mgr.Run(context.Background(), exePath, model.SpjConfig{
			Command: "{spj_path} {in_file_path} {user_out_file_path} {answer_file_path}",
		}, inPath, outPath, ansPath)
		if got != tc.want {
			t.Fatalf("exit %d mapped to %v, want %v", tc.exit, got, tc.want)
		}
		if tc.wantErr && !appErr.Is(err, appErr.SPJError) {
			t.Fatalf("exit %d: got err %v, want SPJError", tc.exit, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("exit %d: unexpected error %v", tc.exit, err)
		}
	}
}

func TestRunResolvesEveryValidatedSlot(t *testing.T) {
	eng := &fakeEngine{}
	mgr := newManager(t, eng, 4)
	exePath, err := mgr.EnsureCompiled(context.Background(), "src", "1", compileConfig())
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	dir := t.TempDir()
	inPath := filepath.Join(dir, "1.in")
	outPath := filepath.Join(dir, "user.out")
	ansPath := filepath.Join(dir, "1.out")
	for _, p := range []string{inPath, outPath, ansPath} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	cfg := model.SpjConfig{
		Command:   "/usr/bin/java -Xmx{max_memory} -cp {exe_dir} Spj {in_file_path} {user_out_file_path} {answer_file_path}",
		MaxMemory: 512 << 20,
	}
	if err := lang.ValidateSpjConfig(cfg); err != nil {
		t.Fatalf("template rejected at validation: %v", err)
	}
	got, err := mgr.Run(context.Background(), exePath, cfg, inPath, outPath, ansPath)
	if err != nil {
		t.Fatalf("validated template failed at run time: %v", err)
	}
	if got != verdict.SpjAccepted {
		t.Fatalf("verdict = %v", got)
	}
	cmd := strings.Join(eng.lastRun.Cmd, " ")
	if !strings.Contains(cmd, "-Xmx"+strconv.FormatInt(512<<20, 10)) {
		t.Fatalf("max_memory not substituted: %q", cmd)
	}
	if !strings.Contains(cmd, "-cp "+filepath.Dir(exePath)) {
		t.Fatalf("exe_dir not substituted: %q", cmd)
	}
}
