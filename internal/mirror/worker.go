package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/repomirror/gitmirror/internal/model"
	git "github.com/repomirror/gitmirror/pkg/gitshell"
)

// originRemote is the only remote name the engine ever manages. Targets
// are mirrors, not working repos with multiple remotes.
const originRemote = "origin"

// Clock abstracts time.Now so tests can drive deterministic durations.
type Clock func() time.Time

// Worker executes the single-repo reconciliation state machine: clone,
// fetch, fast-forward-only update, or a terminal skip. It never resets,
// rebases, merges, or force-pushes — the only local branch writes it ever
// performs are a fast-forward update-ref and creating a missing local
// default branch at the remote's commit, and the only directory write for an
// absent repo is a clone into a staging path renamed atomically on
// success.
type Worker struct {
	Verify bool
	Clock  Clock
}

// NewWorker creates a Worker. verify enables the read-only upstream
// comparison pass (spec step 13); mismatches are logged as observations
// and never change the outcome's status.
func NewWorker(verify bool) *Worker {
	return &Worker{Verify: verify, Clock: time.Now}
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

// Reconcile drives one WorkItem through the state machine to a terminal
// Outcome. auth is used only to clone/fetch; it is never written to disk
// or attached to the returned Outcome.
func (w *Worker) Reconcile(ctx context.Context, item model.WorkItem, auth model.RepoAuth) model.Outcome {
	start := w.now()
	out := w.reconcile(ctx, item, auth)
	out.DurationSecs = w.now().Sub(start).Seconds()
	return out
}

func (w *Worker) reconcile(ctx context.Context, item model.WorkItem, auth model.RepoAuth) model.Outcome {
	out := model.Outcome{RepoID: item.Repo.ID, LocalPath: item.LocalPath}

	// Step 1: a detected rename is applied before anything else looks at
	// the filesystem. A failed move is terminal — never re-clone on top
	// of a half-moved directory.
	if item.RenameFrom != "" && item.RenameFrom != item.LocalPath && dirExists(item.RenameFrom) {
		if err := renameDir(item.RenameFrom, item.LocalPath); err != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("moving renamed repo %s -> %s: %w", item.RenameFrom, item.LocalPath, err)
			return out
		}
		out.Observations = append(out.Observations, fmt.Sprintf("moved from previous path %s", item.RenameFrom))
	}

	if !dirExists(item.LocalPath) {
		return w.clone(ctx, item, auth, out)
	}

	g := git.New(item.LocalPath)
	if !isGitRepo(ctx, g) {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("%s exists and is not a git repository", item.LocalPath)
		return out
	}

	dirty, err := isRepoDirty(ctx, g)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("checking working tree status: %w", err)
		return out
	}
	if dirty {
		out.Status = model.StatusWorkingTreeDirty
		return out
	}

	if err := reconcileOrigin(ctx, g, item, &out); err != nil {
		out.Status = model.StatusFailed
		out.Err = err
		return out
	}

	if err := fetchOrigin(ctx, g, item, auth); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("fetch: %w", err)
		return out
	}

	if item.Repo.DefaultBranch == "" {
		out.Status = model.StatusMissingDefault
		return out
	}

	w.reconcileDefaultBranch(ctx, g, item, &out)
	return out
}

// clone performs step 2: clone into a staging directory beside the
// expected path, then rename atomically into place so a crash mid-clone
// never leaves a half-written directory at the expected path.
func (w *Worker) clone(ctx context.Context, item model.WorkItem, auth model.RepoAuth, out model.Outcome) model.Outcome {
	if item.Repo.CloneURL == "" {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("repository %s has no clone URL", item.Repo.Name)
		return out
	}
	parent := filepath.Dir(item.LocalPath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("creating parent directory for %s: %w", item.LocalPath, err)
		return out
	}

	staging, err := os.MkdirTemp(parent, ".mirror-clone-*")
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("creating staging directory: %w", err)
		return out
	}
	defer os.RemoveAll(staging) // no-op once the rename below succeeds

	g := git.New(staging)
	if err := g.Clone(ctx, withCredentials(item.Repo.CloneURL, auth), nil); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("cloning %s: %w", item.Repo.Name, err)
		return out
	}
	// The credential-bearing URL only ever lives in the process that ran
	// the clone; scrub it from the remote config before anything durable
	// is written (spec §3: "no credentials are ever stored on disk").
	if err := g.SetRemoteURL(ctx, originRemote, item.Repo.CloneURL); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("resetting origin url after clone: %w", err)
		return out
	}
	if err := g.SetRemoteHead(ctx, originRemote); err != nil {
		log.Warn().Str("repo_id", string(item.Repo.ID)).Err(err).Msg("set-head --auto failed after clone")
	}
	// Step 7 applies to a fresh clone as well: when the default branch is
	// absent on the remote, the staging clone is discarded by the deferred
	// RemoveAll and nothing is written at the expected path.
	if branch := item.Repo.DefaultBranch; branch != "" {
		if _, err := g.ResolveRef(ctx, "refs/remotes/"+originRemote+"/"+branch); err != nil {
			out.Status = model.StatusMissingDefault
			return out
		}
	}

	if err := renameDir(staging, item.LocalPath); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("moving cloned repo into place: %w", err)
		return out
	}

	if sha, err := git.New(item.LocalPath).HEAD(ctx); err == nil {
		out.NewHash = sha
	}
	out.Status = model.StatusClonedNew
	return out
}

// reconcileDefaultBranch implements steps 7-11: the remote/local default
// branch comparison that decides between MISSING_DEFAULT_BRANCH,
// UP_TO_DATE, FAST_FORWARDED, and DIVERGED.
func (w *Worker) reconcileDefaultBranch(ctx context.Context, g *git.Git, item model.WorkItem, out *model.Outcome) {
	branch := item.Repo.DefaultBranch
	remoteRef := "refs/remotes/" + originRemote + "/" + branch

	remoteSHA, err := g.ResolveRef(ctx, remoteRef)
	if err != nil {
		out.Status = model.StatusMissingDefault
		return
	}

	localRef := "refs/heads/" + branch
	localSHA, err := g.ResolveRef(ctx, localRef)
	if err != nil {
		// Step 8: local lacks the default branch at all — typically a
		// rename of the default branch itself. Create a local tracking
		// branch rather than treating this as a failure.
		if err := g.CreateBranch(ctx, branch, remoteRef); err != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("creating local tracking branch %s: %w", branch, err)
			return
		}
		out.Observations = append(out.Observations, fmt.Sprintf("created local branch %q tracking %s", branch, remoteRef))
		localSHA = remoteSHA
	}

	out.OldHash = localSHA
	out.NewHash = localSHA

	if localSHA == remoteSHA {
		out.Status = model.StatusUpToDate
		if w.Verify {
			verifyUpstreams(ctx, g, out)
		}
		return
	}

	ahead, behind, err := g.AheadBehind(ctx, localRef, remoteRef)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("computing ahead/behind for %s: %w", branch, err)
		return
	}

	switch {
	case ahead == 0 && behind > 0:
		w.fastForward(ctx, g, branch, remoteSHA, out)
	case ahead > 0 && behind == 0:
		// Local is a strict descendant of remote: there is nothing to
		// pull, and the engine never pushes, so this is simply already
		// up to date from the mirror's point of view.
		out.Status = model.StatusUpToDate
	default:
		out.Status = model.StatusDiverged
	}

	if out.Status == model.StatusUpToDate && w.Verify {
		verifyUpstreams(ctx, g, out)
	}
}

// fastForward implements step 10: advance the ref, and only touch the
// working tree if the branch being advanced is the one currently checked
// out and the tree is already known clean.
func (w *Worker) fastForward(ctx context.Context, g *git.Git, branch, remoteSHA string, out *model.Outcome) {
	current, err := currentBranchOrEmpty(ctx, g)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("determining current branch: %w", err)
		return
	}
	if err := g.UpdateRefFastForward(ctx, branch, remoteSHA); err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("fast-forwarding %s: %w", branch, err)
		return
	}
	if current == branch {
		if err := g.Checkout(ctx, branch); err != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("updating working tree after fast-forward: %w", err)
			return
		}
	}
	out.NewHash = remoteSHA
	out.Status = model.StatusFastForwarded
}

// fetchOrigin implements step 6: fetch every ref from origin and refresh
// its default-branch pointer. Both calls go over the network, so origin
// is briefly rewritten to the credentialed form the same way clone's URL
// is, and always reset back to the bare URL before returning — even when
// the fetch itself fails — so no credential outlives the call (spec §3:
// "no credentials are ever stored on disk").
func fetchOrigin(ctx context.Context, g *git.Git, item model.WorkItem, auth model.RepoAuth) error {
	bareURL := item.Repo.CloneURL
	credURL := withCredentials(bareURL, auth)
	if credURL != bareURL {
		if err := g.SetRemoteURL(ctx, originRemote, credURL); err != nil {
			return fmt.Errorf("setting credentialed origin url: %w", err)
		}
		defer func() {
			if err := g.SetRemoteURL(ctx, originRemote, bareURL); err != nil {
				log.Warn().Str("repo_id", string(item.Repo.ID)).Err(err).Msg("resetting origin url after fetch")
			}
		}()
	}

	if err := g.FetchAll(ctx, originRemote); err != nil {
		return err
	}
	if err := g.SetRemoteHead(ctx, originRemote); err != nil {
		log.Debug().Str("repo_id", string(item.Repo.ID)).Err(err).Msg("set-head --auto failed (harmless for an empty repo)")
	}
	return nil
}

// reconcileOrigin implements step 5: add or rewrite origin to the
// expected clone URL when it is absent or differs, ignoring embedded
// credentials and a trailing ".git". This is recorded as an observation,
// never as a failure.
func reconcileOrigin(ctx context.Context, g *git.Git, item model.WorkItem, out *model.Outcome) error {
	expected := item.Repo.CloneURL
	current, err := g.RemoteURL(ctx, originRemote)
	if err != nil {
		if addErr := g.AddRemote(ctx, originRemote, expected); addErr != nil {
			return fmt.Errorf("adding origin remote: %w", addErr)
		}
		out.Observations = append(out.Observations, "origin remote was missing, added")
		return nil
	}
	if !sameRemoteURL(current, expected) {
		if err := g.SetRemoteURL(ctx, originRemote, expected); err != nil {
			return fmt.Errorf("rewriting origin remote: %w", err)
		}
		out.Observations = append(out.Observations, fmt.Sprintf("origin rewritten from %s", current))
	}
	return nil
}

// verifyUpstreams implements step 13: compare every tracked ref against
// its upstream and log mismatches without modifying anything. It also
// logs (never deletes) orphaned branches whose upstream is gone, per
// step 12.
func verifyUpstreams(ctx context.Context, g *git.Git, out *model.Outcome) {
	branches, err := g.Branches(ctx)
	if err != nil {
		return
	}
	for _, b := range branches {
		if b.Upstream == "" {
			continue
		}
		if strings.Contains(b.Upstream, "gone") {
			out.Observations = append(out.Observations, fmt.Sprintf("branch %q upstream %q is gone (orphaned, left in place)", b.Name, b.Upstream))
			continue
		}
		sha, err := g.ResolveRef(ctx, "refs/remotes/"+b.Upstream)
		if err != nil {
			continue
		}
		if sha != b.Hash {
			out.Observations = append(out.Observations, fmt.Sprintf("branch %q (%s) differs from upstream %s (%s)", b.Name, b.Hash, b.Upstream, sha))
		}
	}
}

// sameRemoteURL compares two clone URLs ignoring embedded credentials
// and a trailing ".git" suffix, per spec step 5.
func sameRemoteURL(a, b string) bool {
	return normalizeRemoteURL(a) == normalizeRemoteURL(b)
}

func normalizeRemoteURL(raw string) string {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	s = strings.TrimSuffix(s, ".git")
	if u, err := url.Parse(s); err == nil && u.User != nil {
		u.User = nil
		s = u.String()
	}
	return s
}

// withCredentials injects auth into an HTTPS clone URL's userinfo for
// the duration of a single clone/fetch call. The credential never
// outlives the process: clone and fetchOrigin always reset origin back
// to the bare URL before returning.
func withCredentials(rawURL string, auth model.RepoAuth) string {
	if auth.Token == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return rawURL
	}
	username := auth.Username
	if username == "" {
		username = "x-access-token"
	}
	u.User = url.UserPassword(username, auth.Token)
	return u.String()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isGitRepo reports whether dir is the root of a git repository, never a
// subdirectory's worth of one: the worker only ever reconciles a
// repository's own top-level directory.
func isGitRepo(ctx context.Context, g *git.Git) bool {
	top, err := g.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return false
	}
	want, err := filepath.EvalSymlinks(g.Dir)
	if err != nil {
		return false
	}
	got, err := filepath.EvalSymlinks(top)
	return err == nil && filepath.Clean(got) == filepath.Clean(want)
}

// isRepoDirty reports whether g's working tree has any uncommitted
// change or an in-progress operation (rebase, merge, cherry-pick, ...).
// Either counts as dirty: the engine must never touch either case.
func isRepoDirty(ctx context.Context, g *git.Git) (bool, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.InProgress != nil || !status.Clean, nil
}

// currentBranchOrEmpty returns the current branch name, or "" if HEAD is
// detached (never an error: a detached HEAD just means no branch can be
// "current" for the off-branch-checkout comparison in fastForward).
func currentBranchOrEmpty(ctx context.Context, g *git.Git) (string, error) {
	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		if errors.Is(err, git.ErrDetachedHead) {
			return "", nil
		}
		return "", err
	}
	return branch, nil
}

// renameDir moves a directory, creating its new parent if necessary.
func renameDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
