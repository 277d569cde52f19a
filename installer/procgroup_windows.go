//go:build windows

package installer

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// EnvWindowsDetached opts installer children out of the shared console
// process group, e.g. when a supervisor manages termination itself.
const EnvWindowsDetached = "AUTOMN_RUNNER_WINDOWS_DETACHED"

func configureProcGroup(cmd *exec.Cmd) {
	if os.Getenv(EnvWindowsDetached) != "" {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x08000000, // CREATE_NO_WINDOW
		}
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x08000000}
}

// installSignalHandlers force-terminates tracked children on interrupt or
// termination, then exits with the POSIX-style code (130 for interrupt,
// 143 for terminate) so orchestration tooling sees consistent semantics
// cross-platform.
func (s *childSet) installSignalHandlers(logger *zap.SugaredLogger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		for _, cmd := range s.snapshot() {
			if cmd.Process == nil {
				continue
			}
			logger.Warnw("Terminating installer child on shutdown", "pid", cmd.Process.Pid)
			_ = cmd.Process.Kill()
		}
		code := 130
		if sig == syscall.SIGTERM {
			code = 143
		}
		os.Exit(code)
	}()
}
