package installer

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// maxReportedAttempts caps how many attempts the aggregate error carries.
const maxReportedAttempts = 3

// maxAttemptOutputBytes truncates each attempt's captured output in the
// aggregate error.
const maxAttemptOutputBytes = 2 * 1024

// LogFunc receives human-readable install progress lines.
type LogFunc func(line string)

// attempt records one npm invocation for the aggregate error.
type attempt struct {
	command string
	output  string
}

// peerConflictMarkers are the npm output signatures that justify retrying
// the same candidate with --legacy-peer-deps. Any other failure moves on.
var peerConflictMarkers = []string{
	"eresolve",
	"peer dep",
	"conflicting peer dependency",
	"could not resolve dependency",
}

// resolutionMarkers indicate transient registry or network trouble worth
// one immediate retry of the same invocation.
var resolutionMarkers = []string{
	"enotfound",
	"etimedout",
	"econnreset",
	"eai_again",
	"socket hang up",
}

// Install provisions every unsatisfied dependency into workDir. Already
// satisfied packages are skipped. On success the installed package names
// are merged into the per-directory cache. On failure the returned error
// aggregates the last attempts rather than surfacing only the final one.
func (i *Installer) Install(ctx context.Context, scriptID string, deps []Dependency, workDir string, onLog LogFunc) error {
	var missing []string
	for _, d := range deps {
		if i.IsSatisfied(d.Install, workDir) {
			continue
		}
		missing = append(missing, d.Install)
	}
	if len(missing) == 0 {
		return nil
	}

	if onLog != nil {
		onLog("Installing packages: " + strings.Join(missing, ", "))
	}

	if err := i.runInstall(ctx, missing, workDir, onLog); err != nil {
		return err
	}

	if err := i.cache.Record(scriptID, workDir, missing); err != nil {
		// Cache failures degrade rehydration, not this install.
		i.logger.Warnw("Failed to record package cache entry",
			"script_id", scriptID, "directory", workDir, "error", err)
	}
	return nil
}

// runInstall walks the candidate chain. Per candidate: a plain install,
// then a --legacy-peer-deps retry only on a peer-conflict signature. A
// launch failure skips straight to the next candidate; a resolution
// failure retries once before moving on.
func (i *Installer) runInstall(ctx context.Context, packages []string, workDir string, onLog LogFunc) error {
	baseArgs := append([]string{"install", "--no-audit", "--no-fund"}, packages...)

	var attempts []attempt
	record := func(argv []string, output string) {
		attempts = append(attempts, attempt{
			command: shellquote.Join(argv...),
			output:  truncateOutput(output),
		})
	}

	candidates := i.resolvedCandidates()
	for _, cand := range candidates {
		argv := append(append([]string{}, cand.argv...), baseArgs...)
		output, err := i.runCommand(ctx, argv, workDir, onLog)
		if err == nil {
			i.resolvedArgv = cand.argv
			return nil
		}
		if isLaunchFailure(err) {
			i.logger.Debugw("npm candidate not launchable", "candidate", cand.name, "error", err)
			record(argv, err.Error())
			continue
		}
		record(argv, output)

		if matchesAny(output, resolutionMarkers) {
			output, err = i.runCommand(ctx, argv, workDir, onLog)
			if err == nil {
				i.resolvedArgv = cand.argv
				return nil
			}
			record(argv, output)
		}

		if matchesAny(output, peerConflictMarkers) {
			retryArgv := append(append([]string{}, argv...), "--legacy-peer-deps")
			output, err = i.runCommand(ctx, retryArgv, workDir, onLog)
			if err == nil {
				i.resolvedArgv = cand.argv
				return nil
			}
			record(retryArgv, output)
		}

		if ctx.Err() != nil {
			break
		}
	}

	if len(attempts) == 0 {
		return errors.New("no npm invocation candidates available")
	}
	return aggregateError(packages, attempts)
}

// resolvedCandidates puts the invocation that last worked first, then the
// regular chain.
func (i *Installer) resolvedCandidates() []candidate {
	chain := i.candidates()
	if i.resolvedArgv == nil {
		return chain
	}
	return dedupeCandidates(append([]candidate{{name: "cached", argv: i.resolvedArgv}}, chain...))
}

// runCommand executes one npm invocation with its children tracked for
// forced cleanup on process exit.
func (i *Installer) runCommand(ctx context.Context, argv []string, workDir string, onLog LogFunc) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	configureProcGroup(cmd)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	i.logger.Debugw("Running npm invocation", "command", shellquote.Join(argv...), "dir", workDir)
	if err := cmd.Start(); err != nil {
		return "", err
	}
	i.children.track(cmd)
	err := cmd.Wait()
	i.children.untrack(cmd)

	output := buf.String()
	if onLog != nil {
		for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
			if line != "" {
				onLog(line)
			}
		}
	}
	if err != nil {
		return output, err
	}
	return output, nil
}

// isLaunchFailure distinguishes "the executable could not start at all"
// from "npm ran and failed".
func isLaunchFailure(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file or directory") ||
		strings.Contains(msg, "executable file not found")
}

func matchesAny(output string, markers []string) bool {
	lowered := strings.ToLower(output)
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// aggregateError summarizes the last distinct attempts into one error.
// Retries of the same command with the same output collapse to one entry
// so they do not crowd out earlier candidates.
func aggregateError(packages []string, attempts []attempt) error {
	seen := make(map[attempt]struct{}, len(attempts))
	distinct := make([]attempt, 0, len(attempts))
	for _, a := range attempts {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		distinct = append(distinct, a)
	}
	attempts = distinct
	if len(attempts) > maxReportedAttempts {
		attempts = attempts[len(attempts)-maxReportedAttempts:]
	}

	var b strings.Builder
	b.WriteString("failed to install ")
	b.WriteString(strings.Join(packages, ", "))
	for n, a := range attempts {
		b.WriteString("\n  attempt ")
		b.WriteByte(byte('1' + n))
		b.WriteString(": ")
		b.WriteString(a.command)
		if a.output != "" {
			b.WriteString("\n    ")
			b.WriteString(strings.ReplaceAll(a.output, "\n", "\n    "))
		}
	}
	return errors.New(b.String())
}

func truncateOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxAttemptOutputBytes {
		return s[:maxAttemptOutputBytes] + "... (truncated)"
	}
	return s
}
