package mirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repomirror/gitmirror/internal/model"
	git "github.com/repomirror/gitmirror/pkg/gitshell"
	"github.com/repomirror/gitmirror/pkg/gitshell/testutil"
)

func newItem(remoteDir, localPath, branch string) model.WorkItem {
	return model.WorkItem{
		Target: model.Target{Name: "t", LocalRoot: filepath.Dir(localPath)},
		Repo: model.RemoteRepo{
			ID:            model.RepoID("repo:" + filepath.Base(localPath)),
			Name:          filepath.Base(localPath),
			CloneURL:      remoteDir,
			DefaultBranch: branch,
		},
		LocalPath: localPath,
	}
}

func TestWorker_ClonesNewRepo(t *testing.T) {
	remote := testutil.LinearHistory(t, 2)
	branch := remote.CurrentBranch()

	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	out := w.Reconcile(context.Background(), item, model.RepoAuth{})

	if out.Status != model.StatusClonedNew {
		t.Fatalf("expected cloned, got %s (%v)", out.Status, out.Err)
	}
	if !isGitRepo(context.Background(), git.New(local)) {
		t.Fatalf("expected %s to be a git repo after clone", local)
	}
}

func TestWorker_UpToDateAfterClone(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	out := w.Reconcile(ctx, item, model.RepoAuth{})
	if out.Status != model.StatusUpToDate {
		t.Fatalf("expected up_to_date on second run, got %s (%v)", out.Status, out.Err)
	}
}

func TestWorker_FastForwardsWhenRemoteAdvances(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	newSHA := remote.Commit("second", map[string]string{"file2.txt": "content2"})

	out := w.Reconcile(ctx, item, model.RepoAuth{})
	if out.Status != model.StatusFastForwarded {
		t.Fatalf("expected fast_forwarded, got %s (%v)", out.Status, out.Err)
	}
	if out.NewHash != newSHA {
		t.Fatalf("expected new hash %s, got %s", newSHA, out.NewHash)
	}
}

func TestWorker_SkipsDirtyWorkingTree(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	remote.Commit("second", map[string]string{"file2.txt": "content2"})
	if err := os.WriteFile(filepath.Join(local, "file1.txt"), []byte("dirtied"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := w.Reconcile(ctx, item, model.RepoAuth{})
	if out.Status != model.StatusWorkingTreeDirty {
		t.Fatalf("expected working_tree_dirty, got %s (%v)", out.Status, out.Err)
	}
}

func TestWorker_DivergedWhenLocalAndRemoteBothAdvance(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	remote.Commit("remote-side", map[string]string{"remote.txt": "r"})

	g := git.New(local)
	if err := g.RunSilent(ctx, "config", "user.email", "test@example.com"); err != nil {
		t.Fatalf("configuring local clone failed: %v", err)
	}
	if err := g.RunSilent(ctx, "config", "user.name", "Test User"); err != nil {
		t.Fatalf("configuring local clone failed: %v", err)
	}
	if err := g.RunSilent(ctx, "-c", "commit.gpgsign=false", "commit", "--allow-empty", "-m", "local-side"); err != nil {
		t.Fatalf("local commit failed: %v", err)
	}

	out := w.Reconcile(ctx, item, model.RepoAuth{})
	if out.Status != model.StatusDiverged {
		t.Fatalf("expected diverged, got %s (%v)", out.Status, out.Err)
	}
}

func TestWorker_MissingDefaultBranch(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, "does-not-exist")

	w := NewWorker(false)
	out := w.Reconcile(context.Background(), item, model.RepoAuth{})
	if out.Status != model.StatusMissingDefault {
		t.Fatalf("expected missing_default_branch, got %s (%v)", out.Status, out.Err)
	}
}

func TestWorker_RenameMovesExistingDirectory(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	oldLocal := filepath.Join(t.TempDir(), "old-name")
	newLocal := filepath.Join(filepath.Dir(oldLocal), "new-name")

	item := newItem(remote.Dir, oldLocal, branch)
	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	renamed := newItem(remote.Dir, newLocal, branch)
	renamed.RenameFrom = oldLocal

	out := w.Reconcile(ctx, renamed, model.RepoAuth{})
	if out.Status != model.StatusUpToDate {
		t.Fatalf("expected up_to_date after rename, got %s (%v)", out.Status, out.Err)
	}
	if _, err := os.Stat(oldLocal); !os.IsNotExist(err) {
		t.Fatalf("expected old path to be gone, stat err=%v", err)
	}
	if _, err := os.Stat(newLocal); err != nil {
		t.Fatalf("expected new path to exist: %v", err)
	}
}

func TestWorker_RewritesStaleOriginURL(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	g := git.New(local)
	if err := g.SetRemoteURL(ctx, originRemote, "https://example.invalid/stale.git"); err != nil {
		t.Fatalf("forcing stale origin failed: %v", err)
	}

	out := w.Reconcile(ctx, item, model.RepoAuth{})
	if out.Status != model.StatusUpToDate {
		t.Fatalf("expected up_to_date, got %s (%v)", out.Status, out.Err)
	}
	found := false
	for _, obs := range out.Observations {
		if obs == "origin rewritten from https://example.invalid/stale.git" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an origin-rewritten observation, got %v", out.Observations)
	}
	url, err := g.RemoteURL(ctx, originRemote)
	if err != nil || url != remote.Dir {
		t.Fatalf("expected origin to be reset to %s, got %s (%v)", remote.Dir, url, err)
	}
}

func TestWorker_FetchResetsOriginToCredentialFreeURLEvenOnFailure(t *testing.T) {
	remote := testutil.LinearHistory(t, 1)
	branch := remote.CurrentBranch()
	local := filepath.Join(t.TempDir(), "mirrored")
	item := newItem(remote.Dir, local, branch)

	w := NewWorker(false)
	ctx := context.Background()
	w.Reconcile(ctx, item, model.RepoAuth{})

	g := git.New(local)
	unreachable := "https://127.0.0.1:1/repo.git"
	if err := g.SetRemoteURL(ctx, originRemote, unreachable); err != nil {
		t.Fatalf("pointing origin at an unreachable url failed: %v", err)
	}

	authed := newItem(unreachable, local, branch)
	out := w.Reconcile(ctx, authed, model.RepoAuth{Username: "x-access-token", Token: "s3cr3t"})
	if out.Status != model.StatusFailed {
		t.Fatalf("expected failed against an unreachable remote, got %s (%v)", out.Status, out.Err)
	}

	got, err := g.RemoteURL(ctx, originRemote)
	if err != nil {
		t.Fatalf("reading origin url after failed fetch: %v", err)
	}
	if got != unreachable {
		t.Fatalf("expected origin reset to %s after a failed fetch, got %s", unreachable, got)
	}
	if strings.Contains(got, "s3cr3t") {
		t.Fatalf("credential leaked into stored origin url: %s", got)
	}
}
