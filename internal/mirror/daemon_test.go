package mirror

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/repomirror/gitmirror/internal/cache"
	"github.com/repomirror/gitmirror/internal/config"
	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
)

// stubAuth always resolves the same fixed credential, exercising the
// AuthResolver seam without a real keyring.
type stubAuth struct{}

func (stubAuth) Resolve(ctx context.Context, target model.Target) (model.RepoAuth, error) {
	return model.RepoAuth{}, nil
}

// emptyAdapter reports an empty inventory for every target, enough to let
// Orchestrator.Run complete a full pass with no repos to reconcile.
type emptyAdapter struct{ kind model.ProviderKind }

func (a emptyAdapter) Kind() model.ProviderKind { return a.kind }
func (a emptyAdapter) ValidateAuth(ctx context.Context, baseURL string, auth model.RepoAuth) error {
	return nil
}
func (a emptyAdapter) ListRepos(ctx context.Context, baseURL string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error) {
	return nil, nil
}
func (a emptyAdapter) HealthCheck(ctx context.Context, baseURL string) error { return nil }
func (a emptyAdapter) TokenScopes(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error) {
	return nil, providers.ErrTokenScopesUnsupported
}

func newTestOrchestrator(t *testing.T, dir string) (*Orchestrator, *config.Store) {
	t.Helper()
	cfgStore := config.New(filepath.Join(dir, "config.json"))
	if err := cfgStore.Save(config.File{Targets: []model.Target{
		{Name: "t1", Provider: model.ProviderGitHub, ScopeSegments: []string{"acme"}, LocalRoot: filepath.Join(dir, "mirrors")},
	}}); err != nil {
		t.Fatal(err)
	}

	reg := providers.NewRegistry(
		emptyAdapter{kind: model.ProviderAzureDevOps},
		emptyAdapter{kind: model.ProviderGitHub},
		emptyAdapter{kind: model.ProviderGitLab},
	)

	o := &Orchestrator{
		Config:        cfgStore,
		Cache:         cache.New(filepath.Join(dir, "cache.json")),
		Providers:     reg,
		Auth:          stubAuth{},
		Worker:        NewWorker(false),
		MissingRemote: NewMissingRemoteHandler(),
		LockPath:      filepath.Join(dir, "mirror.lock"),
	}
	return o, cfgStore
}

func TestRunDaemon_RunOnceStopsAfterFirstPass(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t, dir)

	result, err := RunDaemon(context.Background(), o, DaemonOptions{RunOnce: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Counters.UpToDate+result.Counters.Cloned+result.Counters.Failed+result.Counters.Skipped != 0 {
		t.Fatalf("expected no repos to process with an empty inventory, got %+v", result.Counters)
	}
}

func TestRunDaemon_StopsOnContextCancellation(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, err := RunDaemon(ctx, o, DaemonOptions{Interval: time.Hour})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunDaemon did not return after context cancellation")
	}
}

func TestNewConfigWatcher_FiresOnConfigWrite(t *testing.T) {
	dir := t.TempDir()
	_, cfgStore := newTestOrchestrator(t, dir)

	trigger := make(chan struct{}, 1)
	watcher, err := newConfigWatcher(cfgStore.Path(), trigger)
	if err != nil {
		t.Fatalf("newConfigWatcher failed: %v", err)
	}
	defer watcher.Close()

	cfg, err := cfgStore.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Targets[0].Parallelism = 4
	if err := cfgStore.Save(cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-trigger:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a config write to trigger the watcher within 5s")
	}
}
