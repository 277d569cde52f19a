package registry

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareDotted compares two dotted-integer version strings segment by
// segment. Missing segments count as 0; there are no semantics beyond
// ordinal comparison (no pre-release handling). Returns -1, 0 or 1.
//
// This is deliberately not semver: runner hosts report plain dotted
// integers on the wire and four-segment builds must order correctly.
func CompareDotted(a, b string) int {
	as := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bs := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := segmentAt(as, i)
		bv := segmentAt(bs, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// MeetsMinimum reports whether version v is at least min. An empty minimum
// always passes; an empty version only passes an empty minimum.
func MeetsMinimum(v, min string) bool {
	if strings.TrimSpace(min) == "" {
		return true
	}
	return CompareDotted(v, min) >= 0
}

func segmentAt(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(segments[i]))
	if err != nil {
		return 0
	}
	return n
}

// runtimeAdvisory checks the runner's declared runtimes against an advisory
// semver constraint for node (e.g. ">= 18"). Returns a human-readable
// advisory string, or "" when everything checks out or nothing is declared.
// Never blocks registration; purely for operator visibility.
func runtimeAdvisory(runtimes map[string]string, nodeConstraint string) string {
	if nodeConstraint == "" || len(runtimes) == 0 {
		return ""
	}
	declared, ok := runtimes["node"]
	if !ok {
		return ""
	}

	constraint, err := semver.NewConstraint(nodeConstraint)
	if err != nil {
		return ""
	}
	ver, err := semver.NewVersion(strings.TrimPrefix(declared, "v"))
	if err != nil {
		return "node runtime version unparseable: " + declared
	}
	if !constraint.Check(ver) {
		return "node runtime " + declared + " does not satisfy " + nodeConstraint
	}
	return ""
}
