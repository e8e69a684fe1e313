// Package cache persists per-repository sync state and per-target
// inventory snapshots between runs, with a forward-only schema migration
// path and exponential backoff bookkeeping for failing targets.
package cache

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/repomirror/gitmirror/internal/jsonstore"
	"github.com/repomirror/gitmirror/internal/model"
)

// CurrentSchemaVersion is the schema version written by this build.
// History: v1 introduced per-repo LastStatus/LastHash. v2 added
// FailureCount/NextEligibleAt for backoff (later moved to target scope).
// v3 added per-target inventory snapshots. v4 added DurationSecs to each
// entry for observability. v5 moved backoff bookkeeping and the rename
// path map to a per-target TargetState, matching the spec's cache entry
// shape (inventory/timestamps/backoff/last_known_paths all live together
// per target, not per repo).
const CurrentSchemaVersion = 5

// Entry is the cached state for a single repository between runs.
type Entry struct {
	RepoID       model.RepoID     `json:"repo_id"`
	LastSyncAt   time.Time        `json:"last_sync_at"`
	LastStatus   model.SyncStatus `json:"last_status"`
	LastHash     string           `json:"last_hash,omitempty"`
	DurationSecs float64          `json:"duration_secs,omitempty"`
}

// InventorySnapshot is a cached provider inventory listing for one target.
type InventorySnapshot struct {
	FetchedAt time.Time          `json:"fetched_at"`
	Repos     []model.RemoteRepo `json:"repos"`
}

// TargetState is the per-target bookkeeping the orchestrator consults
// before doing any work for that target: when it last ran, when it last
// succeeded, its current backoff window, and the path each of its repos
// was mirrored to as of the last run (used for rename detection).
type TargetState struct {
	LastSyncAt     time.Time                `json:"last_sync_at,omitempty"`
	LastSuccessAt  time.Time                `json:"last_success_at,omitempty"`
	FailureCount   int                      `json:"failure_count"`
	BackoffUntil   time.Time                `json:"backoff_until,omitempty"`
	LastKnownPaths map[model.RepoID]string `json:"last_known_paths,omitempty"`
}

// RunStatus is the runtime progress of the in-flight (or most recently
// completed) sync run, persisted so an external status reader can
// observe progress without coupling to the engine's process.
type RunStatus struct {
	CurrentTarget string `json:"current_target,omitempty"`
	CurrentRepo   string `json:"current_repo,omitempty"`
	Action        string `json:"action,omitempty"`
	Processed     int    `json:"processed"`
	Total         int    `json:"total"`
	LastError     string `json:"last_error,omitempty"`
}

// File is the on-disk cache document.
type File struct {
	SchemaVersion int                          `json:"schema_version"`
	Entries       map[model.RepoID]Entry       `json:"entries"`
	Inventories   map[string]InventorySnapshot `json:"inventories"` // keyed by target name
	Targets       map[string]TargetState       `json:"targets"`     // keyed by target name
	Status        RunStatus                    `json:"status"`
}

func newFile() File {
	return File{
		SchemaVersion: CurrentSchemaVersion,
		Entries:       map[model.RepoID]Entry{},
		Inventories:   map[string]InventorySnapshot{},
		Targets:       map[string]TargetState{},
	}
}

// Store loads, migrates, and saves the cache file.
type Store struct {
	store *jsonstore.Store[File]
}

// New creates a Store backed by the file at path.
func New(path string) *Store {
	return &Store{store: jsonstore.New[File](path, true)}
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.store.Path()
}

// Load reads the cache file, migrating it forward to CurrentSchemaVersion
// if it was written by an older build. A missing file, or a JSON document
// with none of its fields set, loads as a fresh, empty cache.
func (s *Store) Load() (File, error) {
	f, err := s.store.Load()
	if err != nil {
		return f, err
	}
	if f.SchemaVersion == 0 && f.Entries == nil && f.Inventories == nil && f.Targets == nil {
		return newFile(), nil
	}
	return migrate(f)
}

// Save writes the cache file, stamping the current schema version.
func (s *Store) Save(f File) error {
	f.SchemaVersion = CurrentSchemaVersion
	return s.store.Save(f)
}

// migrate upgrades a cache document to CurrentSchemaVersion in a single
// step, defaulting any field introduced after the document's original
// version. Migration only ever moves forward —
// a document from a newer build than this one is rejected outright,
// since this build cannot know what its new fields mean.
func migrate(f File) (File, error) {
	if f.SchemaVersion > CurrentSchemaVersion {
		return File{}, fmt.Errorf("cache schema version %d is newer than supported version %d", f.SchemaVersion, CurrentSchemaVersion)
	}
	if f.Entries == nil {
		f.Entries = map[model.RepoID]Entry{}
	}
	if f.SchemaVersion < 3 && f.Inventories == nil {
		f.Inventories = map[string]InventorySnapshot{}
	}
	if f.Inventories == nil {
		f.Inventories = map[string]InventorySnapshot{}
	}
	if f.Targets == nil {
		f.Targets = map[string]TargetState{}
	}
	// v1/v2 -> v3: nothing to backfill per-entry, inventories start empty.
	// v<4 -> v4: DurationSecs defaults to zero, already the Go zero value.
	// v<5 -> v5: per-repo FailureCount/NextEligibleAt (if present in an
	// older document) have no target to attach to without re-deriving
	// which target owns each repo_id, so backoff simply restarts clean;
	// a few extra retries after an upgrade is harmless.
	f.SchemaVersion = CurrentSchemaVersion
	return f, nil
}

// Backoff parameters for targets that keep failing provider calls.
const (
	backoffBase = time.Minute
	backoffCap  = 6 * time.Hour
)

// NextBackoff computes the next eligible retry time for a target that has
// failed failureCount times in a row, using exponential backoff capped
// at backoffCap with +/-20% jitter so that many simultaneously-failing
// targets don't all retry in lockstep.
func NextBackoff(now time.Time, failureCount int) time.Time {
	if failureCount <= 0 {
		return now
	}
	delay := backoffBase
	for i := 1; i < failureCount; i++ {
		delay *= 2
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}
	jitter := time.Duration(float64(delay) * (rand.Float64()*0.4 - 0.2))
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return now.Add(delay)
}

// Eligible reports whether a target's backoff window has elapsed. Daemon
// runs consult this before doing any work for the target (spec §4.1 step
// 2); interactive sync always proceeds regardless.
func (s TargetState) Eligible(now time.Time) bool {
	return s.BackoffUntil.IsZero() || !now.Before(s.BackoffUntil)
}

// RecordSuccess resets a target's failure streak and stamps its sync and
// success timestamps.
func (f *File) RecordSuccess(target string, now time.Time) {
	s := f.Targets[target]
	s.FailureCount = 0
	s.BackoffUntil = time.Time{}
	s.LastSyncAt = now
	s.LastSuccessAt = now
	f.Targets[target] = s
}

// RecordFailure bumps a target's failure streak and recomputes its
// backoff window.
func (f *File) RecordFailure(target string, now time.Time) {
	s := f.Targets[target]
	s.FailureCount++
	s.BackoffUntil = NextBackoff(now, s.FailureCount)
	s.LastSyncAt = now
	f.Targets[target] = s
}

// SetLastKnownPaths replaces a target's repo_id -> local path map, used
// on the next run to detect renames and to find repos whose remote has
// disappeared (present in the map, absent from fresh inventory).
func (f *File) SetLastKnownPaths(target string, paths map[model.RepoID]string) {
	s := f.Targets[target]
	s.LastKnownPaths = paths
	f.Targets[target] = s
}

// SetInventory replaces a target's cached inventory snapshot.
func (f *File) SetInventory(target string, repos []model.RemoteRepo, now time.Time) {
	f.Inventories[target] = InventorySnapshot{FetchedAt: now, Repos: repos}
}

// GetInventory returns a target's cached inventory snapshot, if any.
func (f *File) GetInventory(target string) (InventorySnapshot, bool) {
	snap, ok := f.Inventories[target]
	return snap, ok
}

// InventoryTTL is the default lifetime of a cached provider inventory
// listing before it is considered stale and must be refetched.
const InventoryTTL = time.Hour

// Fresh reports whether a cached inventory snapshot is still within ttl
// of now. A ttl of zero uses InventoryTTL.
func (s InventorySnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = InventoryTTL
	}
	return now.Sub(s.FetchedAt) < ttl
}
