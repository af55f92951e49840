//go:build !unix

package bench

import (
	"os/exec"
)

// Without process groups only the leader can be signalled.
func setProcessGroup(*exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func killGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
