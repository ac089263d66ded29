package warden

import (
	"io"
	"log/slog"

	"github.com/wardenhq/warden/platform"
)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger. The default logs to stderr at
// info level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEnforcer overrides the platform enforcer. Intended for tests; the
// default is chosen by the host operating system.
func WithEnforcer(enf platform.Enforcer) Option {
	return func(e *Executor) {
		if enf != nil {
			e.enforcer = enf
		}
	}
}

// WithShell overrides the shell used to run command strings. The default
// is /bin/sh.
func WithShell(shell string) Option {
	return func(e *Executor) {
		if shell != "" {
			e.shell = shell
		}
	}
}

// RunOption configures a single invocation.
type RunOption func(*runConfig)

type runConfig struct {
	stdin       io.Reader
	dir         string
	env         []string
	timeoutSecs int
}

// WithStdin supplies the command's standard input.
func WithStdin(r io.Reader) RunOption {
	return func(rc *runConfig) { rc.stdin = r }
}

// WithDir sets the command's working directory. The default is the
// policy's workspace root.
func WithDir(dir string) RunOption {
	return func(rc *runConfig) { rc.dir = dir }
}

// WithEnv sets the command's environment. The default inherits the
// process environment.
func WithEnv(env []string) RunOption {
	return func(rc *runConfig) { rc.env = env }
}

// WithTimeout overrides the policy's timeout for this invocation.
func WithTimeout(secs int) RunOption {
	return func(rc *runConfig) {
		if secs > 0 {
			rc.timeoutSecs = secs
		}
	}
}
