// Package spj manages special judge binaries: compilation, an
// on-disk artifact cache and per-case execution.
package spj

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"judged/internal/judge/lang"
	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/engine"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/sandbox/spec"
	"judged/internal/judge/verdict"
	appErr "judged/pkg/errors"
)

const (
	defaultMaxCached = 64

	// Fallback limits for special judge runs that do not set their own.
	defaultSpjCPUTimeMs   = 10_000
	defaultSpjMemoryBytes = 1 << 30
)

type cacheEntry struct {
	key     string
	exePath string
	dir     string
}

// Manager compiles special judges and keeps the most recently used
// binaries on disk. Artifacts are keyed by source digest and version,
// so a version bump naturally compiles a fresh binary.
type Manager struct {
	runner  *Runner
	rootDir string

	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
}

// Runner is the subset of compile and run plumbing the manager needs.
type Runner struct {
	run *runner.Runner
	eng engine.Engine
}

// NewRunner bundles the sandbox plumbing used for special judges.
func NewRunner(run *runner.Runner, eng engine.Engine) *Runner {
	return &Runner{run: run, eng: eng}
}

// NewManager creates a manager storing compiled judges under rootDir.
func NewManager(r *Runner, rootDir string, maxCached int) *Manager {
	if maxCached <= 0 {
		maxCached = defaultMaxCached
	}
	return &Manager{
		runner:  r,
		rootDir: rootDir,
		items:   make(map[string]*list.Element, maxCached),
		order:   list.New(),
		maxSize: maxCached,
	}
}

// CacheKey identifies a compiled special judge.
func CacheKey(src, version string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:]) + "-" + version
}

// EnsureCompiled returns the executable path for the given special
// judge source, compiling it first if no cached binary exists.
func (m *Manager) EnsureCompiled(ctx context.Context, src, version string, cfg model.SpjCompileConfig) (string, error) {
	if src == "" {
		return "", appErr.ValidationError("spj_src", "required")
	}
	if version == "" {
		return "", appErr.ValidationError("spj_version", "required")
	}
	key := CacheKey(src, version)
	if exePath, ok := m.lookup(key); ok {
		return exePath, nil
	}

	dir := filepath.Join(m.rootDir, "spj-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", appErr.Wrapf(err, appErr.SPJCompileError, "create spj dir failed")
	}
	compileRes, exePath, err := m.runner.run.Compile(ctx, runner.CompileRequest{
		WorkDir: dir,
		Source:  src,
		Config: model.CompileConfig{
			SrcName:        cfg.SrcName,
			ExeName:        cfg.ExeName,
			MaxCPUTime:     cfg.MaxCPUTime,
			MaxRealTime:    cfg.MaxRealTime,
			MaxMemory:      cfg.MaxMemory,
			CompileCommand: cfg.CompileCommand,
		},
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if !compileRes.OK {
		_ = os.RemoveAll(dir)
		return "", appErr.New(appErr.SPJCompileError).WithMessage(compileRes.Log)
	}
	m.store(key, exePath, dir)
	return exePath, nil
}

// Run executes a compiled special judge against one test case and
// maps its exit status to a verdict. Exit 0 accepts, exit 1 rejects,
// anything else is a judge failure.
func (m *Manager) Run(ctx context.Context, exePath string, cfg model.SpjConfig, inPath, userOutPath, answerPath string) (verdict.SpjVerdict, error) {
	cpuTime := cfg.MaxCPUTime
	if cpuTime <= 0 {
		cpuTime = defaultSpjCPUTimeMs
	}
	memory := cfg.MaxMemory
	if memory <= 0 {
		memory = defaultSpjMemoryBytes
	}
	workDir := filepath.Dir(exePath)
	// Every slot in lang.SpjRunSlots has a value here, so a template
	// that passed validation always expands.
	cmd, err := lang.ExpandCommand(cfg.Command, map[string]string{
		lang.SlotSpjPath:         exePath,
		lang.SlotExeDir:          workDir,
		lang.SlotMaxMemory:       strconv.FormatInt(memory, 10),
		lang.SlotInFilePath:      inPath,
		lang.SlotUserOutFilePath: userOutPath,
		lang.SlotAnswerFilePath:  answerPath,
	})
	if err != nil {
		return verdict.SpjFailed, err
	}
	runSpec := spec.RunSpec{
		WorkDir:     workDir,
		Cmd:         cmd,
		StdoutPath:  filepath.Join(workDir, "spj-"+uuid.NewString()+".out"),
		SeccompRule: cfg.SeccompRule,
		Limits: spec.ResourceLimit{
			CPUTimeMs:   cpuTime,
			RealTimeMs:  cpuTime * 3,
			MemoryBytes: memory,
		},
	}
	runRes, err := m.runner.eng.Run(ctx, runSpec)
	defer func() {
		_ = os.Remove(runSpec.StdoutPath)
	}()
	if err != nil {
		return verdict.SpjFailed, err
	}
	if runRes.Status != result.StatusNormal {
		return verdict.SpjFailed, appErr.New(appErr.SPJError).WithMessage("special judge " + runRes.Status.String())
	}
	switch runRes.ExitCode {
	case 0:
		return verdict.SpjAccepted, nil
	case 1:
		return verdict.SpjWrongAnswer, nil
	default:
		return verdict.SpjFailed, appErr.New(appErr.SPJError).WithMessage("special judge exited with code " + strconv.Itoa(runRes.ExitCode))
	}
}

func (m *Manager) lookup(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.items[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*cacheEntry)
	if _, err := os.Stat(entry.exePath); err != nil {
		m.removeLocked(elem)
		return "", false
	}
	m.order.MoveToFront(elem)
	return entry.exePath, true
}

func (m *Manager) store(key, exePath, dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		old := elem.Value.(*cacheEntry)
		if old.dir != dir {
			_ = os.RemoveAll(old.dir)
		}
		old.exePath = exePath
		old.dir = dir
		m.order.MoveToFront(elem)
		return
	}
	elem := m.order.PushFront(&cacheEntry{key: key, exePath: exePath, dir: dir})
	m.items[key] = elem
	for len(m.items) > m.maxSize {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
	}
}

func (m *Manager) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(m.items, entry.key)
	m.order.Remove(elem)
	_ = os.RemoveAll(entry.dir)
}

// Len reports how many compiled judges are cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
