// Package mirror implements the sync orchestrator and the single-repo
// state machine it drives: the provider-agnostic core that reconciles a
// local mirror tree against remote inventory under strict
// fast-forward-only safety rules, generalized from the teacher's
// Manager/VendorSyncer/ParallelExecutor trio (internal/core/{engine,
// vendor_syncer,parallel_executor}.go) from "vendor a third-party source
// tree" to "mirror a whole repository."
package mirror

import "fmt"

// ErrorCategory is a closed taxonomy of failure kinds. The orchestrator
// tags every error it surfaces with one, which governs how far the
// failure propagates: repo-level categories never abort the target;
// target-level categories never abort the run; only Locked and Config
// abort the invocation itself.
type ErrorCategory string

const (
	ErrCategoryConfig              ErrorCategory = "config"
	ErrCategoryLocked              ErrorCategory = "locked"
	ErrCategoryAuth                ErrorCategory = "auth"
	ErrCategoryTransientProvider   ErrorCategory = "transient_provider"
	ErrCategoryPermanentProvider   ErrorCategory = "permanent_provider"
	ErrCategoryRateLimited         ErrorCategory = "rate_limited"
	ErrCategoryGitOperation        ErrorCategory = "git_operation"
	ErrCategoryWorkingTreeDirty    ErrorCategory = "working_tree_dirty"
	ErrCategoryDiverged            ErrorCategory = "diverged"
	ErrCategoryMissingDefaultBranch ErrorCategory = "missing_default_branch"
	ErrCategoryCachePersist        ErrorCategory = "cache_persist"
	ErrCategoryCancelRequested     ErrorCategory = "cancel_requested"
)

// Error is a typed failure the orchestrator surfaces to its caller,
// carrying enough context to report which target and (if any) repo it
// concerns without the caller having to re-derive it.
type Error struct {
	Category ErrorCategory
	Target   string
	Repo     string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Repo != "":
		return fmt.Sprintf("%s: target %s repo %s: %v", e.Category, e.Target, e.Repo, e.Err)
	case e.Target != "":
		return fmt.Sprintf("%s: target %s: %v", e.Category, e.Target, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
}

// Unwrap exposes the underlying error to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error annotated with its propagation category, or
// returns nil if err is nil (so call sites can write
// `return Wrap(cat, target, repo, err)` unconditionally).
func Wrap(category ErrorCategory, target, repo string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Target: target, Repo: repo, Err: err}
}

// IsFatal reports whether an error category aborts the whole invocation,
// as opposed to being contained to the target or repo that raised it.
func (c ErrorCategory) IsFatal() bool {
	return c == ErrCategoryConfig || c == ErrCategoryLocked
}
