package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/pkg/gitshell/testutil"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestMissingRemoteHandler_Archive(t *testing.T) {
	root := t.TempDir()
	repo := testutil.LinearHistory(t, 1)
	local := filepath.Join(root, "azure-devops", "acme", "widgets")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(repo.Dir, local); err != nil {
		t.Fatal(err)
	}

	h := &MissingRemoteHandler{Clock: fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))}
	out := h.Apply(context.Background(), root, model.ProviderAzureDevOps, []string{"acme"}, "widgets", local, model.MissingRemoteArchive, nil)

	if out.Status != model.StatusArchivedLocally {
		t.Fatalf("expected archived, got %s (%v)", out.Status, out.Err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("expected original path gone, stat err=%v", err)
	}
	if _, err := os.Stat(out.LocalPath); err != nil {
		t.Fatalf("expected archive destination to exist: %v", err)
	}
}

func TestMissingRemoteHandler_ArchiveCollisionGetsSuffixed(t *testing.T) {
	root := t.TempDir()
	h := &MissingRemoteHandler{Clock: fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))}

	makeLocal := func(name string) string {
		repo := testutil.LinearHistory(t, 1)
		local := filepath.Join(root, "github", "acme", name)
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(repo.Dir, local); err != nil {
			t.Fatal(err)
		}
		return local
	}

	first := makeLocal("widgets")
	out1 := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", first, model.MissingRemoteArchive, nil)
	if out1.Status != model.StatusArchivedLocally {
		t.Fatalf("first archive failed: %s (%v)", out1.Status, out1.Err)
	}

	second := makeLocal("widgets")
	out2 := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", second, model.MissingRemoteArchive, nil)
	if out2.Status != model.StatusArchivedLocally {
		t.Fatalf("second archive failed: %s (%v)", out2.Status, out2.Err)
	}
	if out1.LocalPath == out2.LocalPath {
		t.Fatalf("expected distinct archive destinations, both got %s", out1.LocalPath)
	}
}

func TestMissingRemoteHandler_RemovePolicy(t *testing.T) {
	root := t.TempDir()
	repo := testutil.LinearHistory(t, 1)
	local := filepath.Join(root, "gitlab", "acme", "widgets")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(repo.Dir, local); err != nil {
		t.Fatal(err)
	}

	h := NewMissingRemoteHandler()
	out := h.Apply(context.Background(), root, model.ProviderGitLab, []string{"acme"}, "widgets", local, model.MissingRemoteRemove, nil)

	if out.Status != model.StatusRemovedLocally {
		t.Fatalf("expected removed, got %s (%v)", out.Status, out.Err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("expected path removed, stat err=%v", err)
	}
}

func TestMissingRemoteHandler_SkipPolicyLeavesDirectoryInPlace(t *testing.T) {
	root := t.TempDir()
	repo := testutil.LinearHistory(t, 1)
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(repo.Dir, local); err != nil {
		t.Fatal(err)
	}

	h := NewMissingRemoteHandler()
	out := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", local, model.MissingRemoteSkip, nil)

	if out.Status != model.StatusSkipped {
		t.Fatalf("expected skipped, got %s (%v)", out.Status, out.Err)
	}
	if _, err := os.Stat(local); err != nil {
		t.Fatalf("expected path untouched: %v", err)
	}
}

func TestMissingRemoteHandler_DirtyTreeDowngradesToSkip(t *testing.T) {
	root := t.TempDir()
	repo := testutil.DirtyWorkingTree(t)
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(repo.Dir, local); err != nil {
		t.Fatal(err)
	}

	h := NewMissingRemoteHandler()
	out := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", local, model.MissingRemoteArchive, nil)

	if out.Status != model.StatusSkipped {
		t.Fatalf("expected downgraded skip for a dirty tree, got %s (%v)", out.Status, out.Err)
	}
	if _, err := os.Stat(local); err != nil {
		t.Fatalf("expected path untouched by a downgraded skip: %v", err)
	}
}

func TestMissingRemoteHandler_PromptOverridesPolicy(t *testing.T) {
	root := t.TempDir()
	repo := testutil.LinearHistory(t, 1)
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(repo.Dir, local); err != nil {
		t.Fatal(err)
	}

	h := NewMissingRemoteHandler()
	prompt := func(repoName, localPath string) model.MissingRemotePolicy {
		return model.MissingRemoteRemove
	}
	out := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", local, model.MissingRemoteArchive, prompt)

	if out.Status != model.StatusRemovedLocally {
		t.Fatalf("expected the prompt answer (remove) to override the archive policy, got %s (%v)", out.Status, out.Err)
	}
}

func TestMissingRemoteHandler_VanishedDirectoryIsSkippedNotFailed(t *testing.T) {
	root := t.TempDir()
	h := NewMissingRemoteHandler()
	out := h.Apply(context.Background(), root, model.ProviderGitHub, []string{"acme"}, "widgets", filepath.Join(root, "github", "acme", "widgets"), model.MissingRemoteArchive, nil)

	if out.Status != model.StatusSkipped {
		t.Fatalf("expected skipped for an already-absent directory, got %s (%v)", out.Status, out.Err)
	}
}
