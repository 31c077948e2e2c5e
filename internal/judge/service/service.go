// Package service orchestrates a judge call: validation, test-case
// resolution, compilation, per-case execution and classification.
package service

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"judged/internal/judge/lang"
	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/sandbox/security"
	"judged/internal/judge/spj"
	"judged/internal/judge/testcase"
	"judged/internal/judge/verdict"
	appErr "judged/pkg/errors"
	"judged/pkg/utils/logger"
)

// The file the contestant source is written to when the language has
// no compile step. The run command receives it as the exe_path slot.
const interpretedSrcName = "solution"

// Config bounds what a single judge request may ask for.
type Config struct {
	// WorkRoot is where per-request scratch directories are created.
	WorkRoot string
	// MaxConcurrent caps simultaneous sandbox runs across all requests.
	MaxConcurrent int64
	// MaxCPUTimeMs and MaxMemoryBytes are the per-case request ceilings.
	MaxCPUTimeMs   int64
	MaxMemoryBytes int64
	// MaxOutputBytes caps captured program output per run.
	MaxOutputBytes int64
}

// Service drives judge and compile_spj calls end to end.
type Service struct {
	cfg    Config
	runner *runner.Runner
	spj    *spj.Manager
	repo   testcase.Repository
	sem    *semaphore.Weighted
}

// New wires the orchestrator. repo may be nil when only inline test
// cases are served.
func New(cfg Config, run *runner.Runner, spjMgr *spj.Manager, repo testcase.Repository) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 16 << 20
	}
	return &Service{
		cfg:    cfg,
		runner: run,
		spj:    spjMgr,
		repo:   repo,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Judge runs one request and returns one ExecutionResult per test
// case in input order. Validation and compilation failures return an
// error and no results.
func (s *Service) Judge(ctx context.Context, req model.JudgeRequest) ([]model.ExecutionResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	scratch := filepath.Join(s.cfg.WorkRoot, "judge-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0750); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeClientError, "create scratch dir failed")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Error(ctx, "cleanup scratch dir failed", zap.String("dir", scratch), zap.Error(err))
		}
	}()

	cases, err := s.resolveCases(ctx, req, scratch)
	if err != nil {
		return nil, err
	}

	exePath, err := s.prepareProgram(ctx, req, scratch)
	if err != nil {
		return nil, err
	}

	spjExePath := ""
	if req.SpjSrc != "" {
		spjExePath, err = s.spj.EnsureCompiled(ctx, req.SpjSrc, req.SpjVersion, *req.SpjCompileConfig)
		if err != nil {
			return nil, err
		}
	}

	results := make([]model.ExecutionResult, len(cases))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, tc := range cases {
		group.Go(func() error {
			if err := s.sem.Acquire(groupCtx, 1); err != nil {
				results[i] = systemErrorResult(tc.Name)
				return nil
			}
			defer s.sem.Release(1)
			// Wall-clock accounting starts here, after the slot is
			// acquired, so queue wait never counts against the program.
			results[i] = s.judgeCase(groupCtx, req, tc, exePath, spjExePath, scratch)
			return nil
		})
	}
	_ = group.Wait()
	return results, nil
}

// CompileSpj compiles and caches a special judge ahead of use.
func (s *Service) CompileSpj(ctx context.Context, req model.CompileSpjRequest) error {
	if req.Src == "" {
		return appErr.ValidationError("src", "required")
	}
	if req.SpjVersion == "" {
		return appErr.ValidationError("spj_version", "required")
	}
	if err := lang.ValidateSpjCompileConfig(req.SpjCompileConfig); err != nil {
		return err
	}
	_, err := s.spj.EnsureCompiled(ctx, req.Src, req.SpjVersion, req.SpjCompileConfig)
	return err
}

func (s *Service) validate(req model.JudgeRequest) error {
	if req.Src == "" {
		return appErr.ValidationError("src", "required")
	}
	hasID := req.TestCaseID != ""
	hasInline := len(req.TestCases) > 0
	if hasID == hasInline {
		return appErr.New(appErr.InvalidRequest).WithMessage("exactly one of test_case_id and test_case must be set")
	}
	if req.MaxCPUTime <= 0 || req.MaxMemory <= 0 {
		return appErr.New(appErr.InvalidRequest).WithMessage("limits must be positive")
	}
	if s.cfg.MaxCPUTimeMs > 0 && req.MaxCPUTime > s.cfg.MaxCPUTimeMs {
		return appErr.Newf(appErr.InvalidRequest, "max_cpu_time exceeds ceiling %d", s.cfg.MaxCPUTimeMs)
	}
	if s.cfg.MaxMemoryBytes > 0 && req.MaxMemory > s.cfg.MaxMemoryBytes {
		return appErr.Newf(appErr.InvalidRequest, "max_memory exceeds ceiling %d", s.cfg.MaxMemoryBytes)
	}
	if err := lang.ValidateLanguageConfig(req.LanguageConfig); err != nil {
		return err
	}
	if !security.Known(req.LanguageConfig.Run.SeccompRule) {
		return appErr.Newf(appErr.InvalidRequest, "unknown seccomp rule %q", req.LanguageConfig.Run.SeccompRule)
	}
	if req.SpjSrc != "" {
		if req.SpjVersion == "" {
			return appErr.ValidationError("spj_version", "required")
		}
		if req.SpjCompileConfig == nil || req.SpjConfig == nil {
			return appErr.New(appErr.InvalidRequest).WithMessage("spj_src requires spj_compile_config and spj_config")
		}
		if err := lang.ValidateSpjCompileConfig(*req.SpjCompileConfig); err != nil {
			return err
		}
		if err := lang.ValidateSpjConfig(*req.SpjConfig); err != nil {
			return err
		}
		if !security.Known(req.SpjConfig.SeccompRule) {
			return appErr.Newf(appErr.InvalidRequest, "unknown spj seccomp rule %q", req.SpjConfig.SeccompRule)
		}
	}
	return nil
}

func (s *Service) resolveCases(ctx context.Context, req model.JudgeRequest, scratch string) ([]testcase.Case, error) {
	if req.TestCaseID != "" {
		if s.repo == nil {
			return nil, appErr.New(appErr.InvalidRequest).WithMessage("no test case repository is configured")
		}
		return s.repo.Resolve(ctx, req.TestCaseID)
	}
	caseDir := filepath.Join(scratch, "cases")
	if err := os.MkdirAll(caseDir, 0750); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeClientError, "create case dir failed")
	}
	return testcase.Materialize(caseDir, req.TestCases)
}

// prepareProgram compiles the source, or writes it out verbatim for
// languages without a compile step, and returns the artifact path.
func (s *Service) prepareProgram(ctx context.Context, req model.JudgeRequest, scratch string) (string, error) {
	buildDir := filepath.Join(scratch, "build")
	if err := os.MkdirAll(buildDir, 0750); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeClientError, "create build dir failed")
	}
	if req.LanguageConfig.Compile == nil {
		srcPath := filepath.Join(buildDir, interpretedSrcName)
		if err := os.WriteFile(srcPath, []byte(req.Src), 0644); err != nil {
			return "", appErr.Wrapf(err, appErr.JudgeClientError, "write source failed")
		}
		return srcPath, nil
	}
	compileRes, exePath, err := s.runner.Compile(ctx, runner.CompileRequest{
		WorkDir: buildDir,
		Source:  req.Src,
		Config:  *req.LanguageConfig.Compile,
	})
	if err != nil {
		return "", err
	}
	if !compileRes.OK {
		return "", appErr.New(appErr.CompileError).WithMessage(compileRes.Log)
	}
	return exePath, nil
}

func (s *Service) judgeCase(ctx context.Context, req model.JudgeRequest, tc testcase.Case, exePath, spjExePath, scratch string) model.ExecutionResult {
	caseDir := filepath.Join(scratch, "run-"+tc.Name+"-"+uuid.NewString())
	if err := os.MkdirAll(caseDir, 0750); err != nil {
		logger.Error(ctx, "create case run dir failed", zap.String("test_case", tc.Name), zap.Error(err))
		return systemErrorResult(tc.Name)
	}

	caseExe, err := copyArtifact(exePath, caseDir)
	if err != nil {
		logger.Error(ctx, "stage artifact failed", zap.String("test_case", tc.Name), zap.Error(err))
		return systemErrorResult(tc.Name)
	}

	runRes, outPath, err := s.runner.Run(ctx, runner.RunRequest{
		WorkDir:        caseDir,
		ExePath:        caseExe,
		Config:         req.LanguageConfig.Run,
		InputPath:      tc.InputPath,
		MaxCPUTimeMs:   req.MaxCPUTime,
		MaxMemoryBytes: req.MaxMemory,
		MaxOutputBytes: s.cfg.MaxOutputBytes,
	})
	if err != nil {
		logger.Error(ctx, "sandbox run failed", zap.String("test_case", tc.Name), zap.Error(err))
		return systemErrorResult(tc.Name)
	}

	userOut := runner.ReadFileLimited(outPath, s.cfg.MaxOutputBytes)
	outcome := verdict.Outcome{Run: runRes, UserOutput: userOut}
	if tc.OutputPath != "" {
		outcome.ExpectedOutput = runner.ReadFileLimited(tc.OutputPath, s.cfg.MaxOutputBytes)
	}

	if spjExePath != "" && runRes.Status == result.StatusNormal && runRes.ExitCode == 0 {
		answerPath := tc.OutputPath
		if answerPath == "" {
			answerPath = os.DevNull
		}
		spjVerdict, spjErr := s.spj.Run(ctx, spjExePath, *req.SpjConfig, tc.InputPath, outPath, answerPath)
		if spjErr != nil {
			logger.Warn(ctx, "special judge failed", zap.String("test_case", tc.Name), zap.Error(spjErr))
			spjVerdict = verdict.SpjFailed
		}
		outcome.Spj = &spjVerdict
	}

	code, kind := verdict.Classify(outcome)
	res := model.ExecutionResult{
		CPUTime:  runRes.CPUTimeMs,
		RealTime: runRes.RealTimeMs,
		Memory:   runRes.MemoryBytes,
		Signal:   runRes.Signal,
		ExitCode: runRes.ExitCode,
		Error:    kind,
		Result:   code,
		TestCase: tc.Name,
	}
	if req.Output {
		res.Output = string(userOut)
		res.OutputHash = verdict.OutputHash(userOut)
	}
	return res
}

func systemErrorResult(name string) model.ExecutionResult {
	return model.ExecutionResult{
		Error:    model.ErrorSystem,
		Result:   model.ResultSystemError,
		TestCase: name,
	}
}

// copyArtifact stages the compiled program into the per-case
// directory so cases never share a writable executable.
func copyArtifact(exePath, caseDir string) (string, error) {
	data, err := os.ReadFile(exePath)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(caseDir, filepath.Base(exePath))
	if err := os.WriteFile(dst, data, 0755); err != nil {
		return "", err
	}
	return dst, nil
}
