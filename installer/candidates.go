package installer

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// candidate is one way of invoking npm. Argv is the invocation prefix;
// install arguments are appended per attempt.
type candidate struct {
	name string
	argv []string
}

// bundledNpmCli is the npm CLI entry script shipped alongside the runner,
// invoked via the node runtime when no npm executable can be found.
const bundledNpmCli = "npm/bin/npm-cli.js"

// candidates builds the ordered npm invocation chain:
// explicit environment override, executables adjacent to the node runtime,
// a Windows PATH probe using PATHEXT, the bundled npm CLI script, and
// finally npx pinning the latest npm.
func (i *Installer) candidates() []candidate {
	var out []candidate

	if override := os.Getenv(EnvNpmPath); override != "" {
		out = append(out, candidate{name: "env-override", argv: []string{override}})
	}

	if nodePath, err := i.lookPath("node"); err == nil {
		nodeDir := filepath.Dir(nodePath)
		for _, base := range adjacentNpmNames() {
			p := filepath.Join(nodeDir, base)
			if isExecutableFile(p) {
				out = append(out, candidate{name: "adjacent-" + base, argv: []string{p}})
			}
		}
	}

	if runtime.GOOS == "windows" {
		for _, ext := range pathextExtensions() {
			if p, err := i.lookPath("npm" + ext); err == nil {
				out = append(out, candidate{name: "path-npm" + strings.ToLower(ext), argv: []string{p}})
			}
		}
	} else if p, err := i.lookPath("npm"); err == nil {
		out = append(out, candidate{name: "path-npm", argv: []string{p}})
	}

	if dir, err := i.execDir(); err == nil {
		cli := filepath.Join(dir, filepath.FromSlash(bundledNpmCli))
		if _, statErr := os.Stat(cli); statErr == nil {
			if nodePath, lookErr := i.lookPath("node"); lookErr == nil {
				out = append(out, candidate{name: "bundled-cli", argv: []string{nodePath, cli}})
			}
		}
	}

	if p, err := i.lookPath("npx"); err == nil {
		out = append(out, candidate{name: "npx", argv: []string{p, "--yes", "npm@latest"}})
	}

	return dedupeCandidates(out)
}

// adjacentNpmNames lists the npm launcher names that ship next to the node
// binary per platform.
func adjacentNpmNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"npm.cmd", "npm.bat", "npm"}
	}
	return []string{"npm"}
}

// pathextExtensions derives probe extensions from PATHEXT, falling back to
// the conventional set when unset.
func pathextExtensions() []string {
	raw := os.Getenv("PATHEXT")
	if raw == "" {
		return []string{".cmd", ".bat", ".exe"}
	}
	var exts []string
	for _, e := range strings.Split(raw, ";") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, strings.ToLower(e))
	}
	return exts
}

func dedupeCandidates(in []candidate) []candidate {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		key := strings.Join(c.argv, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

func lookPathExecutable(file string) (string, error) {
	return exec.LookPath(file)
}
