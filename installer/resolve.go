package installer

import (
	"os"
	"path/filepath"
)

// IsSatisfied reports whether a package resolves from the script's own
// working directory, or from the installer's own location. The caller's
// directory is deliberately excluded so one script's dependency is never
// silently satisfied by another script's installed packages.
func (i *Installer) IsSatisfied(install, workDir string) bool {
	if resolvesFrom(install, workDir) {
		return true
	}
	if dir, err := i.execDir(); err == nil && resolvesFrom(install, dir) {
		return true
	}
	return false
}

// resolvesFrom checks for an installed package under dir/node_modules.
// Presence of the package's own package.json is the resolution criterion;
// an empty or partially removed directory does not count.
func resolvesFrom(install, dir string) bool {
	manifest := filepath.Join(dir, "node_modules", filepath.FromSlash(install), "package.json")
	info, err := os.Stat(manifest)
	return err == nil && !info.IsDir()
}

// hasNodeModules reports whether the directory has a node_modules tree at
// all. Used by rehydration to skip the per-package walk cheaply.
func hasNodeModules(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "node_modules"))
	return err == nil && info.IsDir()
}
