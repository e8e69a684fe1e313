package git

import (
	"context"
	"fmt"
	"strings"
)

// CloneOpts configures a clone operation.
type CloneOpts struct {
	Filter     string // e.g., "blob:none" for treeless clone
	NoCheckout bool
	Depth      int
}

// Init initializes a new git repository.
func (g *Git) Init(ctx context.Context) error {
	return g.RunSilent(ctx, "init")
}

// AddRemote adds a named remote.
func (g *Git) AddRemote(ctx context.Context, name, url string) error {
	return g.RunSilent(ctx, "remote", "add", name, url)
}

// RemoteURL returns the fetch URL configured for a named remote.
// Returns ErrRefNotFound if the remote does not exist.
func (g *Git) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := g.Run(ctx, "remote", "get-url", name)
	if err != nil {
		return "", ErrRefNotFound
	}
	return out, nil
}

// SetRemoteURL rewrites the fetch URL of an existing remote, creating it
// first if it is not already present.
func (g *Git) SetRemoteURL(ctx context.Context, name, url string) error {
	if err := g.RunSilent(ctx, "remote", "set-url", name, url); err != nil {
		return g.AddRemote(ctx, name, url)
	}
	return nil
}

// RemoveRemote deletes a named remote.
func (g *Git) RemoveRemote(ctx context.Context, name string) error {
	return g.RunSilent(ctx, "remote", "remove", name)
}

// HasRemote reports whether a named remote is configured.
func (g *Git) HasRemote(ctx context.Context, name string) bool {
	_, err := g.RemoteURL(ctx, name)
	return err == nil
}

// Clone clones a repository into this directory.
func (g *Git) Clone(ctx context.Context, url string, opts *CloneOpts) error {
	args := []string{"clone"}
	if opts != nil {
		if opts.Filter != "" {
			args = append(args, "--filter="+opts.Filter)
		}
		if opts.NoCheckout {
			args = append(args, "--no-checkout")
		}
		if opts.Depth > 0 {
			args = append(args, "--depth", fmt.Sprintf("%d", opts.Depth))
		}
	}
	args = append(args, url, ".")
	return g.RunSilent(ctx, args...)
}

// Fetch fetches from a remote with optional depth.
func (g *Git) Fetch(ctx context.Context, remote, ref string, depth int) error {
	args := []string{"fetch"}
	if depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", depth))
	}
	args = append(args, remote, ref)
	return g.RunSilent(ctx, args...)
}

// ParseLsRemoteOutput returns the hash `git ls-remote` output lists for
// ref, preferring the peeled "^{}" line of an annotated tag.
func ParseLsRemoteOutput(output, ref string) (string, error) {
	hash := ""
	for _, line := range strings.Split(output, "\n") {
		f := strings.Fields(line)
		if len(f) != 2 || (f[1] != ref && !strings.HasSuffix(strings.TrimSuffix(f[1], "^{}"), "/"+ref)) {
			continue
		}
		if hash == "" || strings.HasSuffix(f[1], "^{}") {
			hash = f[0]
		}
	}
	if hash == "" {
		return "", fmt.Errorf("no %s ref in ls-remote output", ref)
	}
	return hash, nil
}

// FetchAll fetches all refs from a remote.
func (g *Git) FetchAll(ctx context.Context, remote string) error {
	return g.RunSilent(ctx, "fetch", remote)
}

// Checkout checks out a ref (branch, tag, or commit hash).
func (g *Git) Checkout(ctx context.Context, ref string) error {
	return g.RunSilent(ctx, "checkout", ref)
}
