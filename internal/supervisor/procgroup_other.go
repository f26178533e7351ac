//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

var (
	terminateSignal os.Signal = os.Interrupt
	killSignal      os.Signal = os.Kill
)

func setProcessGroup(*exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	if sig == os.Kill {
		return cmd.Process.Kill()
	}
	return cmd.Process.Signal(sig)
}
