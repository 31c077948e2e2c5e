package engine

import (
	"judged/internal/judge/sandbox/security"
	"judged/internal/judge/sandbox/spec"
)

// initRequest is the JSON document streamed to the sandbox-init helper
// on stdin. The helper applies the isolation settings in-process and
// then execs the target command.
type initRequest struct {
	RunSpec       spec.RunSpec
	Seccomp       security.Profile
	EnableSeccomp bool
}
