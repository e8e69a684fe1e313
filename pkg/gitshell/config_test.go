package git

import (
	"context"
	"testing"

	"github.com/repomirror/gitmirror/pkg/gitshell/testutil"
)

func TestConfigSetThenGet_RoundTrips(t *testing.T) {
	repo := testutil.NewTestRepo(t)

	g := New(repo.Dir)
	if err := g.ConfigSet(context.Background(), "remote.origin.url", "https://example.invalid/repo.git"); err != nil {
		t.Fatal(err)
	}
	got, err := g.ConfigGet(context.Background(), "remote.origin.url")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.invalid/repo.git" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestConfigGet_UnsetKeyErrors(t *testing.T) {
	repo := testutil.NewTestRepo(t)

	g := New(repo.Dir)
	if _, err := g.ConfigGet(context.Background(), "remote.origin.url"); err == nil {
		t.Fatal("expected an error for an unset config key")
	}
}
