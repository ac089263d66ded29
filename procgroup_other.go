//go:build !unix

package warden

import "os/exec"

// configureProcessGroup is a no-op on platforms without process groups.
func configureProcessGroup(cmd *exec.Cmd) {}
