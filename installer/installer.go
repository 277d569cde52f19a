// Package installer provisions npm dependencies for script working
// directories on a runner host. Extraction is static and best-effort,
// installation walks a candidate chain of npm invocations, and successful
// installs feed a per-directory package cache used for rehydration after
// the runner's state is wiped.
package installer

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// EnvNpmPath overrides npm candidate resolution with an explicit path.
const EnvNpmPath = "AUTOMN_RUNNER_NPM_PATH"

// Installer owns all mutable installer state: the npm invocation cache,
// the package cache, and the tracked child process set. One instance per
// process, passed by reference; no package-level globals.
type Installer struct {
	workdirRoot string
	logger      *zap.SugaredLogger

	cache    *PackageCache
	children *childSet

	// resolvedArgv caches the npm invocation that last worked so later
	// installs skip the candidate probe.
	resolvedArgv []string

	// lookPath and execDir are swappable for tests.
	lookPath func(file string) (string, error)
	execDir  func() (string, error)
}

// New creates an installer rooted at workdirRoot, the parent directory of
// all per-script working directories.
func New(workdirRoot string, logger *zap.SugaredLogger) *Installer {
	return &Installer{
		workdirRoot: workdirRoot,
		logger:      logger,
		cache:       NewPackageCache(CachePath(workdirRoot)),
		children:    newChildSet(),
		lookPath:    lookPathExecutable,
		execDir:     executableDir,
	}
}

// CachePath returns the package cache location for a workdir root.
func CachePath(workdirRoot string) string {
	return filepath.Join(filepath.Dir(workdirRoot), "state", "npm-package-cache.json")
}

// Cache exposes the package cache for status queries.
func (i *Installer) Cache() *PackageCache {
	return i.cache
}

// InstallSignalHandlers arranges force-termination of tracked installer
// children when the process exits. A no-op on platforms with native
// process-group handling.
func (i *Installer) InstallSignalHandlers() {
	i.children.installSignalHandlers(i.logger)
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
