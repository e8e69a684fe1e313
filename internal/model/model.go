// Package model defines the data types shared across the mirror engine:
// targets, remote repository descriptions, and local repository state.
package model

import "fmt"

// ProviderKind identifies a supported git hosting platform. The set is
// closed; adding a platform means adding a constant here and a case in
// every switch that dispatches on it (see internal/providers.Registry).
type ProviderKind string

const (
	ProviderAzureDevOps ProviderKind = "azure-devops"
	ProviderGitHub      ProviderKind = "github"
	ProviderGitLab      ProviderKind = "gitlab"
)

// Valid reports whether k is one of the closed set of supported providers.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderAzureDevOps, ProviderGitHub, ProviderGitLab:
		return true
	default:
		return false
	}
}

// ProviderScope names the organizational unit a target mirrors: an AzDO
// organization or organization/project, a GitHub org or user, or a GitLab
// group (which may nest).
// It is immutable after construction — a scope with zero segments is
// never valid and NewProviderScope rejects it.
type ProviderScope struct {
	segments []string
}

// NewProviderScope builds a ProviderScope from one or more path segments.
func NewProviderScope(segments ...string) (ProviderScope, error) {
	if len(segments) == 0 {
		return ProviderScope{}, fmt.Errorf("provider scope requires at least one segment")
	}
	for _, s := range segments {
		if s == "" {
			return ProviderScope{}, fmt.Errorf("provider scope segment must not be empty")
		}
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return ProviderScope{segments: cp}, nil
}

// Segments returns the scope's path segments.
func (s ProviderScope) Segments() []string {
	cp := make([]string, len(s.segments))
	copy(cp, s.segments)
	return cp
}

// String renders the scope as a "/"-joined path, e.g. "acme/platform".
func (s ProviderScope) String() string {
	out := ""
	for i, seg := range s.segments {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}

// MissingRemotePolicy describes what to do with a local repository whose
// remote-side counterpart no longer appears in the provider's inventory.
type MissingRemotePolicy string

const (
	MissingRemoteSkip    MissingRemotePolicy = "skip"
	MissingRemoteArchive MissingRemotePolicy = "archive"
	MissingRemoteRemove  MissingRemotePolicy = "remove"
)

// Target is one configured mirroring unit: a provider, a scope within
// that provider, a local root directory to mirror into, and the policy
// knobs that govern how its repos are synced.
type Target struct {
	Name                 string               `json:"name"`
	Provider             ProviderKind         `json:"provider"`
	ScopeSegments        []string             `json:"scope"`
	BaseURL              string               `json:"base_url,omitempty"`
	LocalRoot            string               `json:"local_root"`
	KeyringKey           string               `json:"keyring_key"`
	Parallelism          int                  `json:"parallelism,omitempty"`
	MissingRemote        MissingRemotePolicy  `json:"missing_remote,omitempty"`
	IncludePatterns      []string             `json:"include,omitempty"`
	ExcludePatterns      []string             `json:"exclude,omitempty"`
	InventoryTTLSeconds  int                  `json:"inventory_ttl_seconds,omitempty"`
}

// Scope reconstructs the target's ProviderScope from its stored segments.
func (t Target) Scope() (ProviderScope, error) {
	return NewProviderScope(t.ScopeSegments...)
}

// RepoID uniquely identifies a remote repository within a provider,
// independent of the target that discovered it: "<provider>:<scope>/<name>",
// or "<provider>:<scope>/<disambiguator>/<name>" when the listing that
// produced it needs one (Azure DevOps org-wide scope, where scope alone
// is identical for every project).
type RepoID string

// NewRepoID builds the canonical identifier for a repository. disambiguator
// is folded into the ID, between scope and name, when non-empty; pass it
// whenever scope alone can collide across two distinct repositories, e.g.
// an Azure DevOps project name for an org-wide listing.
func NewRepoID(provider ProviderKind, scope ProviderScope, name, disambiguator string) RepoID {
	if disambiguator == "" {
		return RepoID(fmt.Sprintf("%s:%s/%s", provider, scope.String(), name))
	}
	return RepoID(fmt.Sprintf("%s:%s/%s/%s", provider, scope.String(), disambiguator, name))
}

// RemoteRepo is a single repository as reported by a provider's inventory
// listing, prior to any local state being known.
type RemoteRepo struct {
	ID            RepoID
	Name          string
	CloneURL      string
	DefaultBranch string
	Archived      bool
	Disabled      bool
	Empty         bool
	Size          int64

	// ProjectName carries the Azure DevOps project name for org-wide
	// listings, so the on-disk path can retain "{org}/{project}/{repo}"
	// even though the target's own scope is just "{org}". Empty for
	// targets scoped to a single project, and for the other providers.
	ProjectName string
}

// PathSegments returns the scope segments a repository's local mirror
// path should be nested under, given the scope its target was configured
// with. It is the scope's own segments, plus ProjectName when the
// provider listing discovered it (Azure DevOps org-wide scope).
func (r RemoteRepo) PathSegments(scope ProviderScope) []string {
	segs := scope.Segments()
	if r.ProjectName != "" {
		segs = append(segs, r.ProjectName)
	}
	return segs
}

// RepoAuth carries short-lived credentials resolved from the keyring for
// a single sync run. It is never serialized to disk or logged.
type RepoAuth struct {
	Username string
	Token    string
}

// SyncStatus is the terminal outcome of processing one repo worker.
type SyncStatus string

const (
	StatusClonedNew        SyncStatus = "cloned"
	StatusFastForwarded    SyncStatus = "fast_forwarded"
	StatusUpToDate         SyncStatus = "up_to_date"
	StatusWorkingTreeDirty SyncStatus = "working_tree_dirty"
	StatusDiverged         SyncStatus = "diverged"
	StatusOriginMismatch   SyncStatus = "origin_mismatch"
	StatusMissingDefault   SyncStatus = "missing_default_branch"
	StatusMissingRemote    SyncStatus = "missing_remote"
	StatusArchivedLocally  SyncStatus = "archived"
	StatusRemovedLocally   SyncStatus = "removed"
	StatusFailed           SyncStatus = "failed"
	StatusSkipped          SyncStatus = "skipped"
)

// Terminal reports whether a status represents the end of processing for
// a repo, as opposed to an intermediate state used only during a worker's
// own bookkeeping.
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusClonedNew, StatusFastForwarded, StatusUpToDate,
		StatusWorkingTreeDirty, StatusDiverged, StatusOriginMismatch,
		StatusMissingDefault, StatusMissingRemote, StatusArchivedLocally,
		StatusRemovedLocally, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsFailure reports whether a status should count toward the "partial
// failure" exit code (6), as distinct from non-failure skip states.
func (s SyncStatus) IsFailure() bool {
	return s == StatusFailed
}

// LocalRepoState captures what the repo worker observed about the local
// clone before deciding what action (if any) to take.
type LocalRepoState struct {
	Path          string
	Exists        bool
	Bare          bool
	CurrentBranch string
	OriginURL     string
	Dirty         bool
	InProgressOp  string
}

// WorkItem is a single (remote repo, expected local path) pairing
// produced by the work-item preparer and handed to exactly one repo
// worker.
type WorkItem struct {
	Target     Target
	Repo       RemoteRepo
	LocalPath  string
	RenameFrom string // non-empty when this repo was previously mirrored under a different name
}

// Outcome is what a repo worker reports back to the orchestrator after
// processing one WorkItem.
type Outcome struct {
	RepoID       RepoID
	Status       SyncStatus
	LocalPath    string
	OldHash      string
	NewHash      string
	Err          error
	DurationSecs float64

	// Observations records non-failure side notes from the transition
	// (origin rewritten, rename applied, orphaned branch, verify
	// mismatch). Orphaned branches and verify mismatches are also logged;
	// none of them changes the outcome's Status.
	Observations []string
}
