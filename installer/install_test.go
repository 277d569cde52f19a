package installer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
)

func newTestInstaller(t *testing.T) *Installer {
	t.Helper()
	i := New(filepath.Join(t.TempDir(), "workdirs"), zap.NewNop().Sugar())
	i.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	i.execDir = func() (string, error) { return "", errors.New("no executable dir") }
	return i
}

// writeFakeNpm writes an executable shell script that appends its arguments
// to logPath and runs body afterward.
func writeFakeNpm(t *testing.T, body string, logPath string) string {
	t.Helper()
	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %q\n%s\n", logPath, body)
	path := filepath.Join(t.TempDir(), "fake-npm")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func fakeNpmLog(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestInstallPeerConflictRetriesSameCandidateWithLegacyPeerDeps(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	logPath := filepath.Join(t.TempDir(), "invocations.log")
	npm := writeFakeNpm(t, `case "$@" in
*--legacy-peer-deps*) exit 0 ;;
*) echo "npm ERR! ERESOLVE could not resolve dependency"; exit 1 ;;
esac`, logPath)
	t.Setenv(EnvNpmPath, npm)

	i := newTestInstaller(t)
	workDir := t.TempDir()

	err := i.Install(context.Background(), "s1", []Dependency{{Install: "left-pad"}}, workDir, nil)
	require.NoError(t, err)

	lines := fakeNpmLog(t, logPath)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "--legacy-peer-deps")
	assert.Contains(t, lines[1], "--legacy-peer-deps")
	assert.Contains(t, lines[1], "left-pad")
}

func TestInstallResolutionFailureRetriesOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	logPath := filepath.Join(t.TempDir(), "invocations.log")
	npm := writeFakeNpm(t, fmt.Sprintf(`if [ "$(wc -l < %q)" -lt 2 ]; then
echo "npm ERR! network ETIMEDOUT registry.npmjs.org"
exit 1
fi
exit 0`, logPath), logPath)
	t.Setenv(EnvNpmPath, npm)

	i := newTestInstaller(t)
	err := i.Install(context.Background(), "s1", []Dependency{{Install: "axios"}}, t.TempDir(), nil)
	require.NoError(t, err)

	// First attempt hit the network marker, the immediate retry succeeded.
	lines := fakeNpmLog(t, logPath)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[1], "--legacy-peer-deps")
}

func TestInstallLaunchFailureSkipsToNextCandidate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	logPath := filepath.Join(t.TempDir(), "invocations.log")
	npm := writeFakeNpm(t, "exit 0", logPath)
	t.Setenv(EnvNpmPath, filepath.Join(t.TempDir(), "does-not-exist"))

	i := newTestInstaller(t)
	i.lookPath = func(file string) (string, error) {
		if file == "npm" {
			return npm, nil
		}
		return "", exec.ErrNotFound
	}

	err := i.Install(context.Background(), "s1", []Dependency{{Install: "lodash"}}, t.TempDir(), nil)
	require.NoError(t, err)
	require.Len(t, fakeNpmLog(t, logPath), 1)
}

func TestInstallSuccessRecordsCacheAndResolvedInvocation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	logPath := filepath.Join(t.TempDir(), "invocations.log")
	npm := writeFakeNpm(t, "exit 0", logPath)
	t.Setenv(EnvNpmPath, npm)

	i := newTestInstaller(t)
	workDir := t.TempDir()
	require.NoError(t, i.Install(context.Background(), "s1", []Dependency{{Install: "chalk"}}, workDir, nil))

	entry, ok, err := i.Cache().Lookup(workDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"chalk"}, entry.Packages)

	// The working invocation is probed first on later installs.
	assert.Equal(t, []string{npm}, i.resolvedArgv)
	assert.Equal(t, "cached", i.resolvedCandidates()[0].name)
}

func TestInstallSkipsSatisfiedDependencies(t *testing.T) {
	i := newTestInstaller(t)
	workDir := t.TempDir()
	pkgDir := filepath.Join(workDir, "node_modules", "lodash")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(`{"name":"lodash"}`), 0o644))

	// No candidates are resolvable, so any attempted install would fail.
	err := i.Install(context.Background(), "s1", []Dependency{{Install: "lodash"}}, workDir, nil)
	require.NoError(t, err)
}

func TestInstallAggregateErrorListsAttempts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	logPath := filepath.Join(t.TempDir(), "invocations.log")
	npm := writeFakeNpm(t, `echo "npm ERR! code E404"; exit 1`, logPath)
	t.Setenv(EnvNpmPath, npm)

	i := newTestInstaller(t)
	err := i.Install(context.Background(), "s1", []Dependency{{Install: "no-such-pkg"}}, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to install no-such-pkg")
	assert.Contains(t, err.Error(), "attempt 1")
	assert.Contains(t, err.Error(), "E404")
}

func TestAggregateErrorCapsReportedAttempts(t *testing.T) {
	attempts := []attempt{
		{command: "npm one"},
		{command: "npm two"},
		{command: "npm three"},
		{command: "npm four"},
		{command: "npm five"},
	}
	err := aggregateError([]string{"lodash"}, attempts)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "npm one")
	assert.NotContains(t, err.Error(), "npm two")
	assert.Contains(t, err.Error(), "npm three")
	assert.Contains(t, err.Error(), "npm five")
}

func TestAggregateErrorDedupesRepeatedAttempts(t *testing.T) {
	attempts := []attempt{
		{command: "npm one", output: "E404"},
		{command: "npm two", output: "ETIMEDOUT"},
		{command: "npm two", output: "ETIMEDOUT"},
		{command: "npm three", output: "ERESOLVE"},
	}
	err := aggregateError([]string{"lodash"}, attempts)
	require.Error(t, err)
	// The repeated retry collapses to one entry, so all three distinct
	// invocations fit within the cap.
	assert.Contains(t, err.Error(), "npm one")
	assert.Contains(t, err.Error(), "npm three")
	assert.Equal(t, 1, strings.Count(err.Error(), "npm two"))
}

func TestIsLaunchFailure(t *testing.T) {
	assert.True(t, isLaunchFailure(exec.ErrNotFound))
	assert.True(t, isLaunchFailure(&exec.Error{Name: "npm", Err: os.ErrNotExist}))
	assert.True(t, isLaunchFailure(errors.New("fork/exec /x/npm: no such file or directory")))
	assert.False(t, isLaunchFailure(errors.New("exit status 1")))
}

func TestMatchesAnyIsCaseInsensitive(t *testing.T) {
	assert.True(t, matchesAny("npm ERR! ERESOLVE unable to resolve", peerConflictMarkers))
	assert.True(t, matchesAny("Could Not Resolve Dependency tree", peerConflictMarkers))
	assert.True(t, matchesAny("getaddrinfo ENOTFOUND registry", resolutionMarkers))
	assert.False(t, matchesAny("npm ERR! code E404", peerConflictMarkers))
	assert.False(t, matchesAny("npm ERR! code E404", resolutionMarkers))
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("x", maxAttemptOutputBytes+100)
	got := truncateOutput(long)
	assert.Len(t, got, maxAttemptOutputBytes+len("... (truncated)"))
	assert.Equal(t, "short", truncateOutput("  short\n"))
}

func TestPathextExtensions(t *testing.T) {
	t.Setenv("PATHEXT", ".COM;.EXE;.BAT;CMD;;")
	assert.Equal(t, []string{".com", ".exe", ".bat", ".cmd"}, pathextExtensions())

	t.Setenv("PATHEXT", "")
	assert.Equal(t, []string{".cmd", ".bat", ".exe"}, pathextExtensions())
}

func TestDedupeCandidates(t *testing.T) {
	in := []candidate{
		{name: "a", argv: []string{"/usr/bin/npm"}},
		{name: "b", argv: []string{"/usr/bin/npm"}},
		{name: "c", argv: []string{"/usr/bin/npx", "--yes", "npm@latest"}},
	}
	out := dedupeCandidates(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].name)
	assert.Equal(t, "c", out[1].name)
}
