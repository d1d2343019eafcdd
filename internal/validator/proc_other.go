//go:build !unix

package validator

import "os/exec"

func killGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}
