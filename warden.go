package warden

import (
	"context"
	"fmt"
	"os"
)

// Exec runs a shell command under the default configuration: workspace-write
// mode rooted at the current directory, network denied, default ceilings.
// It is the one-call entry point; use NewExecutor for anything configurable.
func Exec(ctx context.Context, command string) (*ExecResult, error) {
	e, err := NewExecutor(nil)
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, wd, nil, nil)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, command, pol)
}
