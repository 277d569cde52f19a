//go:build !windows

package installer

import (
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// configureProcGroup puts the child in its own process group so a signal
// to the runner's group does not bypass npm's own children.
func configureProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// installSignalHandlers is a no-op on POSIX: native process-group handling
// already delivers termination to installer children.
func (s *childSet) installSignalHandlers(_ *zap.SugaredLogger) {}
