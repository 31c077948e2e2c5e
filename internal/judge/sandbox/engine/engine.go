package engine

import (
	"context"

	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	// HelperPath locates the sandbox-init binary.
	HelperPath       string
	CgroupRoot       string
	EnableCgroup     bool
	EnableSeccomp    bool
	EnableNamespaces bool
}
