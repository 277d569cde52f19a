package installer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// rehydrateCheckParallelism bounds concurrent satisfaction scans. Installs
// themselves stay serialized.
const rehydrateCheckParallelism = 4

// PackageStatus reports one package's satisfaction state for a directory.
type PackageStatus struct {
	Package   string `json:"package"`
	Satisfied bool   `json:"satisfied"`
	Installed bool   `json:"installed,omitempty"`
}

// CheckStatus reports satisfaction for each package in the script's
// working directory, optionally installing whatever is missing.
func (i *Installer) CheckStatus(ctx context.Context, scriptID string, packages []string, workDir string, installMissing bool) ([]PackageStatus, error) {
	statuses := make([]PackageStatus, 0, len(packages))
	var missing []Dependency
	for _, p := range packages {
		ok := i.IsSatisfied(p, workDir)
		statuses = append(statuses, PackageStatus{Package: p, Satisfied: ok})
		if !ok {
			missing = append(missing, Dependency{Install: p, Requests: []string{p}})
		}
	}

	if !installMissing || len(missing) == 0 {
		return statuses, nil
	}

	if err := i.Install(ctx, scriptID, missing, workDir, nil); err != nil {
		return statuses, err
	}
	for n := range statuses {
		if !statuses[n].Satisfied {
			statuses[n].Satisfied = true
			statuses[n].Installed = true
		}
	}
	return statuses, nil
}

// RehydrateCache restores working directories after runner state loss. A
// directory is reinstalled only if its node_modules is missing or any
// recorded package fails the satisfaction check; untouched directories are
// skipped, bounding cost to actual regressions.
func (i *Installer) RehydrateCache(ctx context.Context) error {
	entries, err := i.cache.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var mu sync.Mutex
	var stale []*CacheEntry

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rehydrateCheckParallelism)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if !i.needsRehydration(entry) {
				return nil
			}
			mu.Lock()
			stale = append(stale, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "rehydration check cancelled")
	}

	var failures []error
	for _, entry := range stale {
		i.logger.Infow("Rehydrating script dependencies",
			"script_id", entry.ScriptID,
			"directory", entry.Directory,
			"packages", len(entry.Packages),
		)
		deps := make([]Dependency, 0, len(entry.Packages))
		for _, p := range entry.Packages {
			deps = append(deps, Dependency{Install: p, Requests: []string{p}})
		}
		if err := i.Install(ctx, entry.ScriptID, deps, entry.Directory, nil); err != nil {
			failures = append(failures, errors.Wrapf(err, "directory %s", entry.Directory))
		}
	}

	if len(failures) > 0 {
		return errors.Wrap(errors.Join(failures...), "rehydration incomplete")
	}
	return nil
}

func (i *Installer) needsRehydration(entry *CacheEntry) bool {
	if !hasNodeModules(entry.Directory) {
		return true
	}
	for _, p := range entry.Packages {
		if !i.IsSatisfied(p, entry.Directory) {
			return true
		}
	}
	return false
}
