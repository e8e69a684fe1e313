package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// HEAD returns the full SHA of the current HEAD commit.
func (g *Git) HEAD(ctx context.Context) (string, error) {
	return g.Run(ctx, "rev-parse", "HEAD")
}

// CurrentBranch returns the short name of the current branch.
// Returns ErrDetachedHead if HEAD is not on a branch.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.Run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", ErrDetachedHead
	}
	return out, nil
}

// IsDetached returns true if HEAD is in detached state.
func (g *Git) IsDetached(ctx context.Context) (bool, error) {
	_, err := g.CurrentBranch(ctx)
	if errors.Is(err, ErrDetachedHead) {
		return true, nil
	}
	return false, err
}

// ResolveRef resolves a ref name to its full SHA.
func (g *Git) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := g.Run(ctx, "rev-parse", ref)
	if err != nil {
		return "", ErrRefNotFound
	}
	return out, nil
}

// RemoteDefaultBranch returns the branch the remote's HEAD symbolic ref
// points at, e.g. "main". It requires that remote metadata has already
// been fetched (git remote set-head --auto or an initial clone/fetch).
func (g *Git) RemoteDefaultBranch(ctx context.Context, remote string) (string, error) {
	out, err := g.Run(ctx, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "", ErrRefNotFound
	}
	branch := strings.TrimPrefix(out, remote+"/")
	return branch, nil
}

// SetRemoteHead asks git to query the remote and record its default
// branch under refs/remotes/<remote>/HEAD.
func (g *Git) SetRemoteHead(ctx context.Context, remote string) error {
	return g.RunSilent(ctx, "remote", "set-head", remote, "--auto")
}

// AheadBehind reports how many commits `local` is ahead of and behind
// `remote`. The counts are computed with a single merge-base-free
// rev-list call, matching git2's graph_ahead_behind semantics used by
// the sync engine to distinguish a clean fast-forward from a divergence.
func (g *Git) AheadBehind(ctx context.Context, local, remote string) (ahead, behind int, err error) {
	out, err := g.Run(ctx, "rev-list", "--left-right", "--count", local+"..."+remote)
	if err != nil {
		return 0, 0, fmt.Errorf("git rev-list failed: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	if _, err := fmt.Sscanf(fields[0], "%d", &ahead); err != nil {
		return 0, 0, fmt.Errorf("parsing ahead count: %w", err)
	}
	if _, err := fmt.Sscanf(fields[1], "%d", &behind); err != nil {
		return 0, 0, fmt.Errorf("parsing behind count: %w", err)
	}
	return ahead, behind, nil
}

// UpdateRefFastForward moves a local branch ref to newSHA using
// update-ref so that a fast-forward never touches the working tree or
// index, even when the branch checked out is not the current one.
func (g *Git) UpdateRefFastForward(ctx context.Context, branch, newSHA string) error {
	return g.RunSilent(ctx, "update-ref", "refs/heads/"+branch, newSHA)
}

// IsBare reports whether the repository has no working tree.
func (g *Git) IsBare(ctx context.Context) (bool, error) {
	out, err := g.Run(ctx, "rev-parse", "--is-bare-repository")
	if err != nil {
		return false, fmt.Errorf("git rev-parse --is-bare-repository failed: %w", err)
	}
	return out == "true", nil
}
