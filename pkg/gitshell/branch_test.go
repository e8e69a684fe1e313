package git

import (
	"context"
	"testing"

	"github.com/repomirror/gitmirror/pkg/gitshell/testutil"
)

func TestBranches_MarksCurrentBranch(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.Commit("initial", map[string]string{"a.txt": "one"})
	base := repo.CurrentBranch()
	repo.Branch("feature")

	g := New(repo.Dir)
	branches, err := g.Branches(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var sawCurrent, sawBase bool
	for _, b := range branches {
		if b.Name == "feature" && !b.Current {
			t.Fatalf("expected feature to be the current branch")
		}
		if b.Name == "feature" {
			sawCurrent = true
		}
		if b.Name == base {
			sawBase = true
		}
	}
	if !sawCurrent || !sawBase {
		t.Fatalf("expected both branches listed, got %+v", branches)
	}
}

func TestCreateBranch_AtHEADWhenStartPointEmpty(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	sha := repo.Commit("initial", map[string]string{"a.txt": "one"})

	g := New(repo.Dir)
	if err := g.CreateBranch(context.Background(), "feature", ""); err != nil {
		t.Fatal(err)
	}
	got, err := g.ResolveRef(context.Background(), "feature")
	if err != nil {
		t.Fatal(err)
	}
	if got != sha {
		t.Fatalf("expected feature at %s, got %s", sha, got)
	}
}

func TestCreateBranch_AtExplicitStartPoint(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	first := repo.Commit("initial", map[string]string{"a.txt": "one"})
	repo.Commit("second", map[string]string{"b.txt": "two"})

	g := New(repo.Dir)
	if err := g.CreateBranch(context.Background(), "old-point", first); err != nil {
		t.Fatal(err)
	}
	got, err := g.ResolveRef(context.Background(), "old-point")
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Fatalf("expected old-point at %s, got %s", first, got)
	}
}

func TestDeleteBranch_SafeDeleteRemovesMergedBranch(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.Commit("initial", map[string]string{"a.txt": "one"})

	g := New(repo.Dir)
	if err := g.CreateBranch(context.Background(), "to-delete", ""); err != nil {
		t.Fatal(err)
	}
	if err := g.DeleteBranch(context.Background(), "to-delete", false); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ResolveRef(context.Background(), "to-delete"); err == nil {
		t.Fatal("expected the deleted branch to no longer resolve")
	}
}

func TestDeleteBranch_SafeDeleteFailsOnUnmergedBranch(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.Commit("initial", map[string]string{"a.txt": "one"})
	base := repo.CurrentBranch()
	repo.Branch("unmerged")
	repo.Commit("unmerged-1", map[string]string{"b.txt": "two"})
	repo.Checkout(base)

	g := New(repo.Dir)
	if err := g.DeleteBranch(context.Background(), "unmerged", false); err == nil {
		t.Fatal("expected a safe delete of an unmerged branch to fail")
	}
}

func TestDeleteBranch_ForceDeleteRemovesUnmergedBranch(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.Commit("initial", map[string]string{"a.txt": "one"})
	base := repo.CurrentBranch()
	repo.Branch("unmerged")
	repo.Commit("unmerged-1", map[string]string{"b.txt": "two"})
	repo.Checkout(base)

	g := New(repo.Dir)
	if err := g.DeleteBranch(context.Background(), "unmerged", true); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ResolveRef(context.Background(), "unmerged"); err == nil {
		t.Fatal("expected the force-deleted branch to no longer resolve")
	}
}
