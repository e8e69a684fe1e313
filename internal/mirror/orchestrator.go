package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/repomirror/gitmirror/internal/audit"
	"github.com/repomirror/gitmirror/internal/cache"
	"github.com/repomirror/gitmirror/internal/config"
	"github.com/repomirror/gitmirror/internal/lockfile"
	"github.com/repomirror/gitmirror/internal/mirrorpath"
	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
	"github.com/repomirror/gitmirror/internal/scheduler"
)

// AuthResolver resolves short-lived credentials for a target at run
// time. It is the keyring boundary: the orchestrator calls it and never
// reads a credential store directly (spec §6, §9).
type AuthResolver interface {
	Resolve(ctx context.Context, target model.Target) (model.RepoAuth, error)
}

// Selector picks which configured targets a run touches. TargetName, if
// set, wins over Provider/ScopeSegments; supplying both logs a warning
// and ignores the tuple (spec §4.1).
type Selector struct {
	TargetName    string
	Provider      model.ProviderKind
	ScopeSegments []string
}

// Options carries the per-run policy knobs spec §4.1 lists as
// Sync Orchestrator inputs.
type Options struct {
	NonInteractive  bool
	MissingRemote   model.MissingRemotePolicy
	IncludeArchived bool
	ForceRefresh    bool
	Verify          bool
	Jobs            int
	AuditRepo       bool
	Daemon          bool // consult the scheduler/backoff; interactive sync never does
	Prompt          PromptFunc
}

// ProgressEvent is emitted on every repo transition, in occurrence order
// per target (spec §5).
type ProgressEvent struct {
	Target string
	Repo   string
	Action string
}

// ProgressFunc receives ProgressEvents as the orchestrator produces them.
type ProgressFunc func(ProgressEvent)

// Counters tallies terminal outcomes across an entire run.
type Counters struct {
	UpToDate        int
	Updated         int
	Cloned          int
	SkippedDirty    int
	SkippedDiverged int
	MissingRemote   int
	Failed          int
	Archived        int
	Removed         int
	Skipped         int
}

func (c *Counters) add(status model.SyncStatus) {
	switch status {
	case model.StatusUpToDate:
		c.UpToDate++
	case model.StatusFastForwarded:
		c.Updated++
	case model.StatusClonedNew:
		c.Cloned++
	case model.StatusWorkingTreeDirty:
		c.SkippedDirty++
	case model.StatusDiverged:
		c.SkippedDiverged++
	case model.StatusMissingRemote:
		c.MissingRemote++
	case model.StatusArchivedLocally:
		c.Archived++
	case model.StatusRemovedLocally:
		c.Removed++
	case model.StatusFailed:
		c.Failed++
	default:
		c.Skipped++
	}
}

// TargetFailure records why an entire target could not be processed
// (e.g. auth resolution failed before any repo work was attempted).
type TargetFailure struct {
	Target string
	Err    error
}

// RunResult is what Orchestrator.Run returns once every selected target
// has been processed (or dispatch was cancelled).
type RunResult struct {
	Counters       Counters
	TargetFailures []TargetFailure
	RepoFailures   []model.Outcome
	CachePersistErr error
}

// Orchestrator drives reconciliation across every selected target,
// generalized from the teacher's Manager/VendorSyncer pairing
// (internal/core/engine.go, internal/core/vendor_syncer.go) from
// "vendor a pinned source tree" to "mirror a whole repository."
type Orchestrator struct {
	Config       *config.Store
	Cache        *cache.Store
	Providers    *providers.Registry
	Auth         AuthResolver
	Worker       *Worker
	MissingRemote *MissingRemoteHandler
	Audit        audit.Sink
	LockPath     string
	Progress     ProgressFunc
	Clock        Clock
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

// Run acquires the process lock, loads config and cache, reconciles
// every selected target in deterministic order, and persists the
// updated cache before returning (spec §4.1 steps 1-8).
func (o *Orchestrator) Run(ctx context.Context, sel Selector, opts Options) (RunResult, error) {
	lock, err := lockfile.Acquire(o.LockPath)
	if err != nil {
		return RunResult{}, Wrap(ErrCategoryLocked, "", "", err)
	}
	defer lock.Release()

	cfg, err := o.Config.Load()
	if err != nil {
		return RunResult{}, Wrap(ErrCategoryConfig, "", "", err)
	}

	targets, err := selectTargets(cfg.Targets, sel)
	if err != nil {
		return RunResult{}, Wrap(ErrCategoryConfig, "", "", err)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })

	cacheFile, err := o.Cache.Load()
	if err != nil {
		return RunResult{}, Wrap(ErrCategoryConfig, "", "", err)
	}
	pruneCache(&cacheFile, cfg.Targets)

	result := RunResult{}

	for _, target := range targets {
		if ctx.Err() != nil {
			log.Info().Msg("cancellation requested; no further targets will be dispatched")
			break
		}
		o.runTarget(ctx, target, opts, &cacheFile, &result)
	}

	if err := o.Cache.Save(cacheFile); err != nil {
		result.CachePersistErr = Wrap(ErrCategoryCachePersist, "", "", err)
	}

	return result, nil
}

// selectTargets implements the precedence rule from spec §4.1: an
// explicit target id wins over a (provider, scope) tuple; supplying both
// logs a warning and the tuple is ignored.
func selectTargets(all []model.Target, sel Selector) ([]model.Target, error) {
	if sel.TargetName != "" {
		if sel.Provider != "" || len(sel.ScopeSegments) > 0 {
			log.Warn().Str("target_id", sel.TargetName).Msg("both --target-id and --provider/--scope given; --target-id takes precedence")
		}
		for _, t := range all {
			if t.Name == sel.TargetName {
				return []model.Target{t}, nil
			}
		}
		return nil, fmt.Errorf("no target named %q", sel.TargetName)
	}
	if sel.Provider != "" || len(sel.ScopeSegments) > 0 {
		var out []model.Target
		for _, t := range all {
			if t.Provider == sel.Provider && sameScope(t.ScopeSegments, sel.ScopeSegments) {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no target matches provider %q scope %v", sel.Provider, sel.ScopeSegments)
		}
		return out, nil
	}
	return all, nil
}

func sameScope(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pruneCache drops cache state for targets no longer present in config
// (spec §4.4 cache.prune).
func pruneCache(f *cache.File, targets []model.Target) {
	live := make(map[string]bool, len(targets))
	for _, t := range targets {
		live[t.Name] = true
	}
	for name := range f.Targets {
		if !live[name] {
			delete(f.Targets, name)
			delete(f.Inventories, name)
		}
	}
}

// runTarget implements spec §4.1 steps 2-8 for a single target: backoff
// check, auth resolution, inventory, filtering, work-item preparation,
// dispatch, and outcome reduction.
func (o *Orchestrator) runTarget(ctx context.Context, target model.Target, opts Options, cacheFile *cache.File, result *RunResult) {
	now := o.now()

	if opts.Daemon {
		if st, ok := cacheFile.Targets[target.Name]; ok && !st.Eligible(now) {
			log.Info().Str("target", target.Name).Time("backoff_until", st.BackoffUntil).Msg("target is within its backoff window, skipping")
			return
		}
	}

	auth, err := o.Auth.Resolve(ctx, target)
	if err != nil {
		wrapped := Wrap(ErrCategoryAuth, target.Name, "", err)
		result.TargetFailures = append(result.TargetFailures, TargetFailure{Target: target.Name, Err: wrapped})
		cacheFile.RecordFailure(target.Name, now)
		return
	}

	adapter, err := o.Providers.For(target.Provider)
	if err != nil {
		wrapped := Wrap(ErrCategoryConfig, target.Name, "", err)
		result.TargetFailures = append(result.TargetFailures, TargetFailure{Target: target.Name, Err: wrapped})
		return
	}

	scope, err := target.Scope()
	if err != nil {
		result.TargetFailures = append(result.TargetFailures, TargetFailure{Target: target.Name, Err: Wrap(ErrCategoryConfig, target.Name, "", err)})
		return
	}

	repos, err := o.obtainInventory(ctx, target, scope, adapter, auth, opts, cacheFile, now)
	if err != nil {
		wrapped := Wrap(ErrCategoryTransientProvider, target.Name, "", err)
		result.TargetFailures = append(result.TargetFailures, TargetFailure{Target: target.Name, Err: wrapped})
		cacheFile.RecordFailure(target.Name, now)
		return
	}

	filtered := filterInventory(repos, target, opts.IncludeArchived)

	prevPaths := cacheFile.Targets[target.Name].LastKnownPaths
	items, missing, err := prepareWorkItems(target, scope, filtered, prevPaths)
	if err != nil {
		result.TargetFailures = append(result.TargetFailures, TargetFailure{Target: target.Name, Err: Wrap(ErrCategoryConfig, target.Name, "", err)})
		return
	}

	newPaths := make(map[model.RepoID]string, len(items))
	for _, it := range items {
		newPaths[it.Repo.ID] = it.LocalPath
	}

	if opts.Daemon {
		// Interactive sync and force-refresh-all ignore buckets; daemon
		// mode only touches the slice of repos due today (spec §4.5).
		due := items[:0]
		for _, it := range items {
			if scheduler.Due(it.Repo.ID, now) {
				due = append(due, it)
			}
		}
		items = due
	}

	outcomes := o.dispatch(ctx, target, items, auth, opts)
	outcomes = append(outcomes, o.applyMissingRemote(ctx, target, missing, opts)...)

	cacheFile.SetLastKnownPaths(target.Name, newPaths)

	for _, o2 := range outcomes {
		result.Counters.add(o2.Status)
		if o2.Status == model.StatusFailed {
			result.RepoFailures = append(result.RepoFailures, o2)
		}
		cacheFile.Entries[o2.RepoID] = cache.Entry{
			RepoID:       o2.RepoID,
			LastSyncAt:   now,
			LastStatus:   o2.Status,
			LastHash:     o2.NewHash,
			DurationSecs: o2.DurationSecs,
		}
		if o.Audit != nil && opts.AuditRepo {
			o.Audit.Record(audit.NewEvent(target.Name, o2, now))
		}
	}

	// Per-repo failures are repo-level (spec §7: "repo-level failures
	// never abort the target") and don't trip the target's own backoff;
	// that's reserved for failures to even reach the repo loop (auth,
	// inventory listing).
	cacheFile.RecordSuccess(target.Name, now)
}

// obtainInventory returns cached inventory when it is fresh and a
// refresh wasn't forced, otherwise calls the provider adapter and caches
// the result (spec §4.1 step 4).
func (o *Orchestrator) obtainInventory(ctx context.Context, target model.Target, scope model.ProviderScope, adapter providers.Adapter, auth model.RepoAuth, opts Options, cacheFile *cache.File, now time.Time) ([]model.RemoteRepo, error) {
	ttl := time.Duration(target.InventoryTTLSeconds) * time.Second
	if !opts.ForceRefresh {
		if snap, ok := cacheFile.GetInventory(target.Name); ok && snap.Fresh(now, ttl) {
			return snap.Repos, nil
		}
	}

	repos, err := adapter.ListRepos(ctx, target.BaseURL, scope, auth)
	if err != nil {
		return nil, err
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	cacheFile.SetInventory(target.Name, repos, now)
	return repos, nil
}

// filterInventory drops archived/disabled repos unless includeArchived,
// then applies the target's include/exclude glob patterns (matched
// against the repo name; exclude wins over include on conflict).
func filterInventory(repos []model.RemoteRepo, target model.Target, includeArchived bool) []model.RemoteRepo {
	out := make([]model.RemoteRepo, 0, len(repos))
	for _, r := range repos {
		if !includeArchived && (r.Archived || r.Disabled) {
			continue
		}
		if !patternsAllow(target.IncludePatterns, target.ExcludePatterns, r.Name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// patternsAllow reports whether name should be kept: it must match at
// least one include pattern (an empty include list matches everything)
// and must not match any exclude pattern. Malformed glob patterns never
// panic the run; they simply never match.
func patternsAllow(include, exclude []string, name string) bool {
	for _, pat := range exclude {
		if ok, _ := filepath.Match(pat, name); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// prepareWorkItems computes the expected local path for every repo,
// detects renames against prevPaths, and separates out repos that were
// known before but are absent from the fresh inventory (spec §4.1 step
// 6, §4.6).
func prepareWorkItems(target model.Target, scope model.ProviderScope, repos []model.RemoteRepo, prevPaths map[model.RepoID]string) ([]model.WorkItem, []missingRepo, error) {
	items := make([]model.WorkItem, 0, len(repos))
	seen := make(map[model.RepoID]bool, len(repos))

	for _, r := range repos {
		segs := r.PathSegments(scope)
		path, err := mirrorpath.RepoLocalPath(target.LocalRoot, string(target.Provider), segs, r.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("computing local path for %s: %w", r.Name, err)
		}
		seen[r.ID] = true
		item := model.WorkItem{Target: target, Repo: r, LocalPath: path}
		if prev, ok := prevPaths[r.ID]; ok && prev != path {
			item.RenameFrom = prev
		}
		items = append(items, item)
	}

	var missing []missingRepo
	for id, path := range prevPaths {
		if !seen[id] {
			missing = append(missing, missingRepo{RepoID: id, LocalPath: path})
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].RepoID < missing[j].RepoID })

	return items, missing, nil
}

type missingRepo struct {
	RepoID    model.RepoID
	LocalPath string
}

// scopeSegmentsFromPath recovers the scope path segments (including an
// Azure DevOps org-wide listing's project segment, which the target's
// own configured scope doesn't carry) from a mirrored repo's directory,
// by taking everything between "<root>/<provider_kind>/" and the repo's
// own directory name.
func scopeSegmentsFromPath(target model.Target, localPath string) []string {
	base := filepath.Join(target.LocalRoot, string(target.Provider))
	rel, err := filepath.Rel(base, filepath.Dir(localPath))
	if err != nil || rel == "." || rel == "" {
		return target.ScopeSegments
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

// dispatch runs every WorkItem for a target, sequentially if Jobs <= 1,
// otherwise across a bounded worker pool (spec §4.1 step 7, §5:
// parallelism is within a target only).
func (o *Orchestrator) dispatch(ctx context.Context, target model.Target, items []model.WorkItem, auth model.RepoAuth, opts Options) []model.Outcome {
	// An explicit --jobs flag overrides the target's own default; absent
	// that, the target's configured parallelism applies; absent that,
	// work runs sequentially.
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = target.Parallelism
	}
	if jobs <= 0 {
		jobs = 1
	}

	outcomes := make([]model.Outcome, len(items))

	run := func(i int) {
		item := items[i]
		o.emit(ProgressEvent{Target: target.Name, Repo: item.Repo.Name, Action: "reconcile"})
		outcomes[i] = o.Worker.Reconcile(ctx, item, auth)
		o.emit(ProgressEvent{Target: target.Name, Repo: item.Repo.Name, Action: string(outcomes[i].Status)})
	}

	if jobs == 1 {
		for i := range items {
			if ctx.Err() != nil {
				break
			}
			run(i)
		}
		return outcomes
	}

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			run(i)
		}(i)
	}
	wg.Wait()
	return outcomes
}

// applyMissingRemote runs the missing-remote policy over every repo that
// was known before but vanished from inventory this run.
func (o *Orchestrator) applyMissingRemote(ctx context.Context, target model.Target, missing []missingRepo, opts Options) []model.Outcome {
	if len(missing) == 0 {
		return nil
	}
	policy := opts.MissingRemote
	if policy == "" {
		policy = target.MissingRemote
	}
	outcomes := make([]model.Outcome, 0, len(missing))
	for _, m := range missing {
		name := filepath.Base(m.LocalPath)
		scopeSegs := scopeSegmentsFromPath(target, m.LocalPath)
		o.emit(ProgressEvent{Target: target.Name, Repo: name, Action: "missing_remote"})
		out := o.MissingRemote.Apply(ctx, target.LocalRoot, target.Provider, scopeSegs, name, m.LocalPath, policy, opts.Prompt)
		out.RepoID = m.RepoID
		outcomes = append(outcomes, out)
		o.emit(ProgressEvent{Target: target.Name, Repo: name, Action: string(out.Status)})
	}
	return outcomes
}

// Due reports whether repoID is eligible for daemon-mode processing
// today, delegating to the scheduler's stable bucket hash (spec §4.5).
func Due(repoID model.RepoID, now time.Time) bool {
	return scheduler.Due(repoID, now)
}

// PruneCache drops cache state for targets no longer present in cfg, for
// the standalone "cache prune" CLI command (spec §6).
func PruneCache(cacheFile *cache.File, cfg []model.Target) {
	pruneCache(cacheFile, cfg)
}
