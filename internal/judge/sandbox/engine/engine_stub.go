//go:build !linux

package engine

import (
	"context"

	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/spec"
	appErr "judged/pkg/errors"
)

type stubEngine struct{}

// NewEngine returns a stub on non-Linux hosts; every run fails.
func NewEngine(cfg Config) (Engine, error) {
	return stubEngine{}, nil
}

func (stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.New(appErr.SandboxError).WithMessage("sandbox engine requires linux")
}
