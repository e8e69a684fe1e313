package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repomirror/gitmirror/internal/mirrorpath"
	"github.com/repomirror/gitmirror/internal/model"
	git "github.com/repomirror/gitmirror/pkg/gitshell"
)

// PromptFunc asks the caller what to do about one vanished repo and
// returns the policy to apply. It is the interactive missing-remote
// prompt's capability seam (spec §4.6, §9: "the core never reads stdin
// directly"); the orchestrator only ever supplies one when running
// interactively.
type PromptFunc func(repoName, localPath string) model.MissingRemotePolicy

// MissingRemoteHandler applies the archive/remove/skip policy to a local
// mirror whose remote counterpart no longer appears in fresh inventory.
type MissingRemoteHandler struct {
	Clock Clock
}

// NewMissingRemoteHandler creates a MissingRemoteHandler.
func NewMissingRemoteHandler() *MissingRemoteHandler {
	return &MissingRemoteHandler{Clock: time.Now}
}

func (h *MissingRemoteHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// Apply resolves and carries out the policy for one repo no longer
// present in remote inventory. If prompt is non-nil its answer overrides
// policy (interactive mode); a dirty local tree always downgrades
// archive/remove to skip.
func (h *MissingRemoteHandler) Apply(ctx context.Context, root string, provider model.ProviderKind, scopeSegments []string, repoName, localPath string, policy model.MissingRemotePolicy, prompt PromptFunc) model.Outcome {
	out := model.Outcome{LocalPath: localPath}

	if prompt != nil {
		policy = prompt(repoName, localPath)
	}

	if !dirExists(localPath) {
		out.Status = model.StatusSkipped
		return out
	}

	if policy == model.MissingRemoteArchive || policy == model.MissingRemoteRemove {
		if dirty, err := isRepoDirty(ctx, git.New(localPath)); err == nil && dirty {
			out.Status = model.StatusSkipped
			out.Observations = append(out.Observations, "downgraded to skip: working tree is dirty")
			return out
		}
	}

	switch policy {
	case model.MissingRemoteArchive:
		dest, err := h.archive(root, provider, scopeSegments, repoName, localPath)
		if err != nil {
			out.Status = model.StatusFailed
			out.Err = err
			return out
		}
		out.Status = model.StatusArchivedLocally
		out.LocalPath = dest
		return out
	case model.MissingRemoteRemove:
		if err := os.RemoveAll(localPath); err != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("removing %s: %w", localPath, err)
			return out
		}
		out.Status = model.StatusRemovedLocally
		return out
	default:
		out.Status = model.StatusSkipped
		return out
	}
}

// archive computes a collision-free archive destination and moves
// localPath there, cross-device-safe.
func (h *MissingRemoteHandler) archive(root string, provider model.ProviderKind, scopeSegments []string, repoName, localPath string) (string, error) {
	ts := h.now().UTC().Format("20060102-150405")
	suffix := ts
	dest, err := mirrorpath.ArchivePath(root, string(provider), scopeSegments, repoName, suffix)
	if err != nil {
		return "", err
	}
	for i := 2; dirExists(dest); i++ {
		suffix = fmt.Sprintf("%s-%d", ts, i)
		dest, err = mirrorpath.ArchivePath(root, string(provider), scopeSegments, repoName, suffix)
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	if err := crossDeviceMove(localPath, dest); err != nil {
		return "", fmt.Errorf("archiving %s to %s: %w", localPath, dest, err)
	}
	return dest, nil
}

// crossDeviceMove moves src to dst, falling back to copy+verify+unlink
// when the two paths are on different filesystems (os.Rename's EXDEV),
// per spec §3's "cross-device-safe move (copy+verify+unlink fallback)".
func crossDeviceMove(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDeviceErr(err) {
		return err
	}

	if err := copyTree(src, dst); err != nil {
		os.RemoveAll(dst)
		return err
	}
	if err := verifyTreeCopy(src, dst); err != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("copy verification failed: %w", err)
	}
	return os.RemoveAll(src)
}

// copyTree recursively copies src to dst, preserving file mode and
// modification time so an archived mirror's tree is indistinguishable
// from the one that was moved, short of the move itself.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, data, info.Mode()); err != nil {
				return err
			}
			return os.Chtimes(target, info.ModTime(), info.ModTime())
		}
	})
}

// verifyTreeCopy checks that every entry under src has a same-shaped
// counterpart under dst before the source is unlinked.
func verifyTreeCopy(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		tinfo, statErr := os.Lstat(target)
		if statErr != nil {
			return fmt.Errorf("missing copy of %s: %w", rel, statErr)
		}
		if info.IsDir() != tinfo.IsDir() {
			return fmt.Errorf("type mismatch for %s", rel)
		}
		if !info.IsDir() && info.Mode()&os.ModeSymlink == 0 && info.Size() != tinfo.Size() {
			return fmt.Errorf("size mismatch for %s", rel)
		}
		return nil
	})
}
