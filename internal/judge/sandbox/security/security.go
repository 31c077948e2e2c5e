// Package security defines the compiled-in syscall restriction
// profiles. Adding a language family means adding a named profile
// here, never constructing policies at request time.
package security

import (
	appErr "judged/pkg/errors"
)

// Profile is a named seccomp allow-list. A process invoking a syscall
// outside the list is killed by the kernel (SIGSYS).
type Profile struct {
	Name string
	// Allowed is the syscall allow-list. Empty together with
	// Unrestricted=false is invalid.
	Allowed []string
	// AllowNetwork keeps the network namespace shared with the host.
	AllowNetwork bool
	// Unrestricted disables seccomp filtering entirely.
	Unrestricted bool
}

// baseSyscalls is shared by every restricted profile: the minimum a
// dynamically linked program needs to start, run and exit.
var baseSyscalls = []string{
	"read", "write", "readv", "writev", "close", "fstat", "newfstatat",
	"lseek", "mmap", "mprotect", "munmap", "brk", "mremap",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
	"access", "faccessat", "faccessat2", "openat", "pread64",
	"readlink", "readlinkat", "getrandom", "arch_prctl", "futex",
	"set_tid_address", "set_robust_list", "prlimit64", "rseq",
	"clock_gettime", "clock_getres", "clock_nanosleep", "nanosleep",
	"gettid", "getpid", "getppid", "getuid", "geteuid", "getgid",
	"getegid", "uname", "fcntl", "dup", "dup2", "dup3", "pipe", "pipe2",
	"exit", "exit_group", "execve", "getcwd", "ioctl", "madvise",
	"sysinfo", "getrlimit", "restart_syscall",
}

// runtimeSyscalls extends the base list for garbage-collected and
// thread-heavy runtimes (Go, JVM, Node and friends).
var runtimeSyscalls = []string{
	"clone", "clone3", "sched_yield", "sched_getaffinity",
	"sched_getparam", "sched_getscheduler", "sched_setaffinity",
	"tgkill", "tkill", "kill", "membarrier", "mlock", "munlock",
	"epoll_create1", "epoll_ctl", "epoll_pwait", "epoll_wait",
	"eventfd2", "wait4", "waitid", "getdents64", "statx", "stat",
	"lstat", "fstatfs", "statfs", "timer_create", "timer_settime",
	"timer_delete", "setitimer", "getitimer", "rt_sigtimedwait",
	"capget", "prctl", "fsync", "fdatasync", "ftruncate", "umask",
	"mkdirat", "unlinkat", "flock", "socketpair",
}

var profiles = map[string]Profile{
	"": {
		Name:         "",
		Unrestricted: true,
	},
	"general": {
		Name:    "general",
		Allowed: baseSyscalls,
	},
	"c_cpp": {
		Name:    "c_cpp",
		Allowed: baseSyscalls,
	},
	"golang": {
		Name:    "golang",
		Allowed: append(append([]string{}, baseSyscalls...), runtimeSyscalls...),
	},
	"node": {
		Name:    "node",
		Allowed: append(append([]string{}, baseSyscalls...), runtimeSyscalls...),
	},
	"java": {
		Name:    "java",
		Allowed: append(append([]string{}, baseSyscalls...), runtimeSyscalls...),
	},
}

// Resolve maps a profile name to its compiled-in definition.
func Resolve(name string) (Profile, error) {
	prof, ok := profiles[name]
	if !ok {
		return Profile{}, appErr.Newf(appErr.InvalidRequest, "unknown seccomp profile: %s", name)
	}
	return prof, nil
}

// Known reports whether a profile name exists.
func Known(name string) bool {
	_, ok := profiles[name]
	return ok
}
