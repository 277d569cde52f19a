package agent

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// systemInfo is the capability snapshot advertised on each heartbeat.
type systemInfo struct {
	OS            string
	Platform      string
	Arch          string
	UptimeSeconds uint64
	Runtimes      map[string]string
}

// collectSystemInfo gathers OS and runtime facts. Failures degrade to
// partial data; a heartbeat with missing capability fields still refreshes
// health.
func collectSystemInfo(ctx context.Context, logger *zap.SugaredLogger) systemInfo {
	info := systemInfo{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Runtimes: map[string]string{},
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.UptimeSeconds = hi.Uptime
	} else {
		logger.Debugw("Failed to read host info", "error", err)
	}

	if nodeVer := probeRuntimeVersion(ctx, "node"); nodeVer != "" {
		info.Runtimes["node"] = nodeVer
	}
	if npmVer := probeRuntimeVersion(ctx, "npm"); npmVer != "" {
		info.Runtimes["npm"] = npmVer
	}

	return info
}

// probeRuntimeVersion asks an executable for its version, tolerating its
// absence.
func probeRuntimeVersion(ctx context.Context, name string) string {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(cctx, name, "--version").Output()
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(string(out)), "v")
}
