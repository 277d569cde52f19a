package installer

import (
	"regexp"
	"sort"
	"strings"
)

// Dependency is one installable package derived from source analysis.
// Install is the npm install target; Requests are the original import
// specifiers that mapped to it (a deep import like "lodash/fp" still
// installs "lodash").
type Dependency struct {
	Install  string   `json:"install"`
	Requests []string `json:"requests"`
}

// Specifier patterns covered: require("x"), import "x", import x from "x",
// export ... from "x", and dynamic import("x").
var (
	requirePattern       = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	importPattern        = regexp.MustCompile(`(?:^|\n)\s*import\s+(?:[\w$*{},\s]+?\s+from\s+)?['"]([^'"]+)['"]`)
	exportFromPattern    = regexp.MustCompile(`(?:^|\n)\s*export\s+[\w$*{},\s]+?\s+from\s+['"]([^'"]+)['"]`)
	dynamicImportPattern = regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

// nodeBuiltins are the runtime modules that never need installation.
// Covers both bare names and the node: prefix (handled separately).
var nodeBuiltins = map[string]struct{}{
	"assert": {}, "async_hooks": {}, "buffer": {}, "child_process": {},
	"cluster": {}, "console": {}, "constants": {}, "crypto": {}, "dgram": {},
	"diagnostics_channel": {}, "dns": {}, "domain": {}, "events": {}, "fs": {},
	"http": {}, "http2": {}, "https": {}, "inspector": {}, "module": {},
	"net": {}, "os": {}, "path": {}, "perf_hooks": {}, "process": {},
	"punycode": {}, "querystring": {}, "readline": {}, "repl": {},
	"stream": {}, "string_decoder": {}, "timers": {}, "tls": {},
	"trace_events": {}, "tty": {}, "url": {}, "util": {}, "v8": {}, "vm": {},
	"wasi": {}, "worker_threads": {}, "zlib": {},
}

// ExtractDependencies statically scans script source for third-party
// imports. Deliberately best-effort: it never executes script code, so it
// under-detects (e.g. computed specifiers) rather than over-trusts.
func ExtractDependencies(source string) []Dependency {
	byInstall := make(map[string][]string)

	for _, pattern := range []*regexp.Regexp{requirePattern, importPattern, exportFromPattern, dynamicImportPattern} {
		for _, m := range pattern.FindAllStringSubmatch(source, -1) {
			spec := m[1]
			install, ok := installTarget(spec)
			if !ok {
				continue
			}
			if !contains(byInstall[install], spec) {
				byInstall[install] = append(byInstall[install], spec)
			}
		}
	}

	deps := make([]Dependency, 0, len(byInstall))
	for install, requests := range byInstall {
		sort.Strings(requests)
		deps = append(deps, Dependency{Install: install, Requests: requests})
	}
	sort.Slice(deps, func(a, b int) bool { return deps[a].Install < deps[b].Install })
	return deps
}

// installTarget maps an import specifier to its npm install target.
// Relative and absolute paths and runtime builtins are excluded. Scoped
// packages keep their two-segment target; others truncate at the first
// path segment.
func installTarget(spec string) (string, bool) {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return "", false
	}
	if strings.HasPrefix(spec, "node:") {
		return "", false
	}

	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 {
			return "", false
		}
		return parts[0] + "/" + parts[1], true
	}
	if _, builtin := nodeBuiltins[parts[0]]; builtin {
		return "", false
	}
	return parts[0], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
