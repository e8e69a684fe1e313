// Package main implements the mirrorctl CLI, the thin entry point the
// core sync engine is driven from: flag parsing, the keyring-backed
// credential store, and the top-level context/signal handling. Per
// spec §1 the CLI/TUI surface is an external collaborator, not part of
// the core — this file is that collaborator's minimal implementation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"

	"github.com/repomirror/gitmirror/internal/audit"
	"github.com/repomirror/gitmirror/internal/cache"
	"github.com/repomirror/gitmirror/internal/config"
	"github.com/repomirror/gitmirror/internal/keyring"
	"github.com/repomirror/gitmirror/internal/mirror"
	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
	"github.com/repomirror/gitmirror/internal/providers/azuredevops"
	"github.com/repomirror/gitmirror/internal/providers/github"
	"github.com/repomirror/gitmirror/internal/providers/gitlab"
	"github.com/repomirror/gitmirror/internal/providers/httpx"
	"github.com/repomirror/gitmirror/internal/version"
)

// Exit codes per spec §6.
const (
	exitOK             = 0
	exitUnexpected     = 1
	exitConfigOrArgs   = 2
	exitLockHeld       = 3
	exitAuthFailure    = 4
	exitProviderFailed = 5
	exitPartialFailure = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitConfigOrArgs
	}

	switch args[0] {
	case "--version":
		fmt.Println(version.GetFullVersion())
		return exitOK
	case "--help", "-h", "help":
		printUsage()
		return exitOK
	}

	env, err := newEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "config":
		return cmdConfig(env, rest)
	case "target":
		return cmdTarget(env, rest)
	case "token":
		return cmdToken(ctx, env, rest)
	case "sync":
		return cmdSync(ctx, env, rest)
	case "daemon":
		return cmdDaemon(ctx, env, rest)
	case "cache":
		return cmdCache(env, rest)
	case "health":
		return cmdHealth(ctx, env, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		printUsage()
		return exitConfigOrArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `mirrorctl - multi-provider git mirror sync engine

Usage:
  mirrorctl config init|language
  mirrorctl target add|list|remove
  mirrorctl token set|guide|validate|doctor
  mirrorctl sync [--non-interactive] [--missing-remote archive|remove|skip]
                 [--refresh|--force-refresh-all] [--verify] [--include-archived]
                 [--jobs N] [--target-id ID | --provider P --scope S] [--audit-repo]
  mirrorctl daemon [--run-once] [--missing-remote ...] [--jobs N] [--interval DURATION]
  mirrorctl cache prune
  mirrorctl health [--target-id ID]`)
}

// env bundles every long-lived collaborator the commands share,
// constructed once per invocation the way cmd.NewManager() does for the
// teacher's CLI.
type env struct {
	configStore *config.Store
	cacheStore  *cache.Store
	keyring     *keyring.Store
	registry    *providers.Registry
	lockPath    string
	auditPath   string
}

func newEnv() (*env, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	base := "gitmirror"

	client := httpx.New(http.DefaultClient, "mirrorctl/"+version.GetVersion())

	return &env{
		configStore: config.New(filepath.Join(configDir, base, "config.json")),
		cacheStore:  cache.New(filepath.Join(cacheDir, base, "cache.json")),
		keyring:     keyring.New(filepath.Join(configDir, base, "credentials.json")),
		registry:    providers.NewRegistry(azuredevops.New(client), github.New(client), gitlab.New(client)),
		lockPath:    filepath.Join(cacheDir, base, "mirror.lock"),
		auditPath:   filepath.Join(cacheDir, base, "audit.jsonl"),
	}, nil
}

func (e *env) adapterFor(kind model.ProviderKind) (providers.Adapter, error) {
	return e.registry.For(kind)
}

func cmdConfig(e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl config init|language")
		return exitConfigOrArgs
	}
	switch args[0] {
	case "init":
		if _, err := e.configStore.Load(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return exitConfigOrArgs
		}
		if err := e.configStore.Save(config.File{Targets: []model.Target{}}); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return exitUnexpected
		}
		fmt.Println("initialized", e.configStore.Path())
		return exitOK
	case "language":
		fmt.Println("en") // localization is out of core scope (spec §1)
		return exitOK
	default:
		fmt.Fprintln(os.Stderr, "usage: mirrorctl config init|language")
		return exitConfigOrArgs
	}
}

func cmdTarget(e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl target add|list|remove")
		return exitConfigOrArgs
	}
	switch args[0] {
	case "add":
		return cmdTargetAdd(e, args[1:])
	case "list":
		return cmdTargetList(e)
	case "remove":
		return cmdTargetRemove(e, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "usage: mirrorctl target add|list|remove")
		return exitConfigOrArgs
	}
}

func cmdTargetAdd(e *env, args []string) int {
	fs := newFlagSet("target add")
	name := fs.String("name", "", "target name")
	provider := fs.String("provider", "", "azure-devops|github|gitlab")
	scope := fs.String("scope", "", "scope path, e.g. acme/platform")
	baseURL := fs.String("base-url", "", "provider API base URL (host)")
	localRoot := fs.String("local-root", "", "local directory to mirror into")
	keyringKey := fs.String("keyring-key", "", "account name under which credentials are stored")
	parallelism := fs.Int("parallelism", 0, "per-target worker count (0 = sequential)")
	missingRemote := fs.String("missing-remote", "skip", "archive|remove|skip")
	include := fs.String("include", "", "comma-separated include glob patterns")
	exclude := fs.String("exclude", "", "comma-separated exclude glob patterns")
	inventoryTTL := fs.Int("inventory-ttl-seconds", 3600, "provider inventory cache lifetime")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}

	kind := model.ProviderKind(*provider)
	if !kind.Valid() {
		fmt.Fprintf(os.Stderr, "invalid --provider %q\n", *provider)
		return exitConfigOrArgs
	}
	if *name == "" || *scope == "" || *localRoot == "" {
		fmt.Fprintln(os.Stderr, "--name, --scope, and --local-root are required")
		return exitConfigOrArgs
	}

	t := model.Target{
		Name:                *name,
		Provider:            kind,
		ScopeSegments:       splitNonEmpty(*scope, "/"),
		BaseURL:             *baseURL,
		LocalRoot:           *localRoot,
		KeyringKey:          *keyringKey,
		Parallelism:         *parallelism,
		MissingRemote:       model.MissingRemotePolicy(*missingRemote),
		IncludePatterns:     splitNonEmpty(*include, ","),
		ExcludePatterns:     splitNonEmpty(*exclude, ","),
		InventoryTTLSeconds: *inventoryTTL,
	}
	if _, err := t.Scope(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}

	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	if _, ok := cfg.FindTarget(t.Name); ok {
		fmt.Fprintf(os.Stderr, "target %q already exists\n", t.Name)
		return exitConfigOrArgs
	}
	cfg.Targets = append(cfg.Targets, t)
	if err := e.configStore.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}
	fmt.Printf("added target %q\n", t.Name)
	return exitOK
}

func cmdTargetList(e *env) int {
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	for _, t := range cfg.Targets {
		fmt.Printf("%s\t%s\t%s\t%s\n", t.Name, t.Provider, strings.Join(t.ScopeSegments, "/"), t.LocalRoot)
	}
	return exitOK
}

func cmdTargetRemove(e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl target remove <name>")
		return exitConfigOrArgs
	}
	name := args[0]
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	out := make([]model.Target, 0, len(cfg.Targets))
	found := false
	for _, t := range cfg.Targets {
		if t.Name == name {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "no target named %q\n", name)
		return exitConfigOrArgs
	}
	cfg.Targets = out
	if err := e.configStore.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}
	fmt.Printf("removed target %q\n", name)
	return exitOK
}

func cmdToken(ctx context.Context, e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl token set|guide|validate|doctor")
		return exitConfigOrArgs
	}
	switch args[0] {
	case "set":
		return cmdTokenSet(e, args[1:])
	case "guide":
		return cmdTokenGuide(args[1:])
	case "validate":
		return cmdTokenValidate(ctx, e, args[1:])
	case "doctor":
		return cmdTokenDoctor(ctx, e, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "usage: mirrorctl token set|guide|validate|doctor")
		return exitConfigOrArgs
	}
}

func cmdTokenSet(e *env, args []string) int {
	fs := newFlagSet("token set")
	targetName := fs.String("target-id", "", "target to store credentials for")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	target, ok := cfg.FindTarget(*targetName)
	if !ok {
		fmt.Fprintf(os.Stderr, "no target named %q\n", *targetName)
		return exitConfigOrArgs
	}
	scope, err := target.Scope()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}

	fmt.Fprint(os.Stderr, "paste token (input is not masked): ")
	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintln(os.Stderr, "error reading token:", err)
		return exitUnexpected
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		fmt.Fprintln(os.Stderr, "empty token, nothing stored")
		return exitConfigOrArgs
	}
	if err := e.keyring.Set(target.Provider, target.BaseURL, scope.String(), target.KeyringKey, secret); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}
	fmt.Printf("stored credentials for target %q\n", target.Name)
	return exitOK
}

func cmdTokenGuide(args []string) int {
	kind := model.ProviderKind("")
	if len(args) > 0 {
		kind = model.ProviderKind(args[0])
	}
	switch kind {
	case model.ProviderAzureDevOps:
		fmt.Println("Azure DevOps: User Settings -> Personal Access Tokens -> New Token. Scope: Code (Read).")
	case model.ProviderGitHub:
		fmt.Println("GitHub: Settings -> Developer settings -> Personal access tokens. Scope: repo (read).")
	case model.ProviderGitLab:
		fmt.Println("GitLab: User Settings -> Access Tokens. Scope: read_repository.")
	default:
		fmt.Println("usage: mirrorctl token guide <azure-devops|github|gitlab>")
	}
	return exitOK
}

func cmdTokenValidate(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("token validate")
	targetName := fs.String("target-id", "", "target to validate credentials for")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}
	target, adapter, auth, rc := resolveTargetAndAuth(ctx, e, *targetName)
	if rc != exitOK {
		return rc
	}
	if err := adapter.ValidateAuth(ctx, target.BaseURL, auth); err != nil {
		fmt.Fprintln(os.Stderr, "invalid:", err)
		return exitAuthFailure
	}
	fmt.Println("credentials valid")
	return exitOK
}

func cmdTokenDoctor(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("token doctor")
	targetName := fs.String("target-id", "", "target to diagnose")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}
	target, adapter, auth, rc := resolveTargetAndAuth(ctx, e, *targetName)
	if rc != exitOK {
		return rc
	}

	if err := adapter.HealthCheck(ctx, target.BaseURL); err != nil {
		fmt.Printf("platform reachable: no (%v)\n", err)
	} else {
		fmt.Println("platform reachable: yes")
	}

	if err := adapter.ValidateAuth(ctx, target.BaseURL, auth); err != nil {
		fmt.Printf("credentials valid: no (%v)\n", err)
		return exitAuthFailure
	}
	fmt.Println("credentials valid: yes")

	scopes, err := adapter.TokenScopes(ctx, target.BaseURL, auth)
	switch {
	case errors.Is(err, providers.ErrTokenScopesUnsupported):
		fmt.Println("token scopes: unsupported by this provider")
	case err != nil:
		fmt.Println("token scopes: unknown (", err, ")")
	case len(scopes) == 0:
		fmt.Println("token scopes: none reported")
	default:
		fmt.Println("token scopes:", strings.Join(scopes, ", "))
	}
	return exitOK
}

func resolveTargetAndAuth(ctx context.Context, e *env, targetName string) (model.Target, providers.Adapter, model.RepoAuth, int) {
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return model.Target{}, nil, model.RepoAuth{}, exitConfigOrArgs
	}
	target, ok := cfg.FindTarget(targetName)
	if !ok {
		fmt.Fprintf(os.Stderr, "no target named %q\n", targetName)
		return model.Target{}, nil, model.RepoAuth{}, exitConfigOrArgs
	}
	adapter, err := e.adapterFor(target.Provider)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return model.Target{}, nil, model.RepoAuth{}, exitConfigOrArgs
	}
	resolver := &keyring.AuthResolver{Store: e.keyring}
	auth, err := resolver.Resolve(ctx, target)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return model.Target{}, nil, model.RepoAuth{}, exitAuthFailure
	}
	return target, adapter, auth, exitOK
}

func cmdSync(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("sync")
	nonInteractive := fs.Bool("non-interactive", false, "never prompt, even on a terminal")
	missingRemote := fs.String("missing-remote", "", "archive|remove|skip, overrides per-target default")
	refresh := fs.Bool("refresh", false, "force a fresh inventory listing")
	forceAll := fs.Bool("force-refresh-all", false, "force inventory refresh and ignore daemon buckets")
	verify := fs.Bool("verify", false, "compare tracked branches against their upstream after syncing")
	includeArchived := fs.Bool("include-archived", false, "include archived/disabled repos")
	jobs := fs.Int("jobs", 0, "parallel workers per target (0 = use target default)")
	targetID := fs.String("target-id", "", "sync only this target")
	provider := fs.String("provider", "", "sync only targets for this provider")
	scope := fs.String("scope", "", "sync only targets with this scope")
	auditRepo := fs.Bool("audit-repo", false, "record a per-repo audit event for this run")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}

	sel := mirror.Selector{
		TargetName:    *targetID,
		Provider:      model.ProviderKind(*provider),
		ScopeSegments: splitNonEmpty(*scope, "/"),
	}
	opts := mirror.Options{
		NonInteractive:  *nonInteractive,
		MissingRemote:   model.MissingRemotePolicy(*missingRemote),
		IncludeArchived: *includeArchived,
		ForceRefresh:    *refresh || *forceAll,
		Verify:          *verify,
		Jobs:            *jobs,
		AuditRepo:       *auditRepo,
	}
	if !*nonInteractive && isatty.IsTerminal(os.Stdin.Fd()) {
		opts.Prompt = stdinPrompt
	}

	o, auditSink, err := e.buildOrchestrator(*auditRepo)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	if auditSink != nil {
		defer auditSink.Close()
	}
	o.Worker.Verify = *verify

	result, err := o.Run(ctx, sel, opts)
	return reportRun(result, err)
}

func cmdDaemon(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("daemon")
	runOnce := fs.Bool("run-once", false, "run one pass and exit instead of looping")
	missingRemote := fs.String("missing-remote", "", "archive|remove|skip, overrides per-target default")
	jobs := fs.Int("jobs", 0, "parallel workers per target")
	interval := fs.Duration("interval", time.Hour, "how often to tick even without a config change")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}

	opts := mirror.Options{
		NonInteractive: true,
		MissingRemote:  model.MissingRemotePolicy(*missingRemote),
		Jobs:           *jobs,
	}

	o, auditSink, err := e.buildOrchestrator(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	if auditSink != nil {
		defer auditSink.Close()
	}

	result, err := mirror.RunDaemon(ctx, o, mirror.DaemonOptions{
		Run:      opts,
		Interval: *interval,
		RunOnce:  *runOnce,
	})
	return reportRun(result, err)
}

func cmdCache(e *env, args []string) int {
	if len(args) == 0 || args[0] != "prune" {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl cache prune")
		return exitConfigOrArgs
	}
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	cacheFile, err := e.cacheStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}
	mirror.PruneCache(&cacheFile, cfg.Targets)
	if err := e.cacheStore.Save(cacheFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}
	fmt.Println("cache pruned")
	return exitOK
}

func cmdHealth(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("health")
	targetID := fs.String("target-id", "", "check only this target")
	if err := fs.Parse(args); err != nil {
		return exitConfigOrArgs
	}
	cfg, err := e.configStore.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitConfigOrArgs
	}

	targets := cfg.Targets
	if *targetID != "" {
		t, ok := cfg.FindTarget(*targetID)
		if !ok {
			fmt.Fprintf(os.Stderr, "no target named %q\n", *targetID)
			return exitConfigOrArgs
		}
		targets = []model.Target{t}
	}

	failed := false
	for _, t := range targets {
		adapter, err := e.adapterFor(t.Provider)
		if err != nil {
			fmt.Printf("%s: %v\n", t.Name, err)
			failed = true
			continue
		}
		if err := adapter.HealthCheck(ctx, t.BaseURL); err != nil {
			fmt.Printf("%s: unreachable (%v)\n", t.Name, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok\n", t.Name)
	}
	if failed {
		return exitProviderFailed
	}
	return exitOK
}

// buildOrchestrator constructs the orchestrator and, if withAudit, a
// file-backed audit sink the caller is responsible for closing.
func (e *env) buildOrchestrator(withAudit bool) (*mirror.Orchestrator, *audit.FileSink, error) {
	var sink audit.Sink = audit.NopSink{}
	var fileSink *audit.FileSink
	if withAudit {
		fs, err := audit.NewFileSink(e.auditPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit log: %w", err)
		}
		fileSink, sink = fs, fs
	}

	o := &mirror.Orchestrator{
		Config:        e.configStore,
		Cache:         e.cacheStore,
		Providers:     e.registry,
		Auth:          &keyring.AuthResolver{Store: e.keyring},
		Worker:        mirror.NewWorker(false),
		MissingRemote: mirror.NewMissingRemoteHandler(),
		Audit:         sink,
		LockPath:      e.lockPath,
		Progress:      printProgress,
	}
	return o, fileSink, nil
}

func printProgress(ev mirror.ProgressEvent) {
	log.Info().Str("target", ev.Target).Str("repo", ev.Repo).Str("action", ev.Action).Msg("sync progress")
}

// stdinPrompt implements mirror.PromptFunc for an interactive terminal
// session: ask once per vanished repo what to do with it.
func stdinPrompt(repoName, localPath string) model.MissingRemotePolicy {
	fmt.Fprintf(os.Stderr, "%s (%s) is no longer on the remote. [a]rchive, [r]emove, [s]kip? ", repoName, localPath)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "a", "archive":
		return model.MissingRemoteArchive
	case "r", "remove":
		return model.MissingRemoteRemove
	default:
		return model.MissingRemoteSkip
	}
}

func reportRun(result mirror.RunResult, err error) int {
	if err != nil {
		var merr *mirror.Error
		if errors.As(err, &merr) {
			switch merr.Category {
			case mirror.ErrCategoryLocked:
				fmt.Fprintln(os.Stderr, "error:", err)
				return exitLockHeld
			case mirror.ErrCategoryConfig:
				fmt.Fprintln(os.Stderr, "error:", err)
				return exitConfigOrArgs
			}
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUnexpected
	}

	c := result.Counters
	fmt.Printf("up_to_date=%d fast_forwarded=%d cloned=%d skipped_dirty=%d skipped_diverged=%d "+
		"missing_remote=%d archived=%d removed=%d failed=%d skipped=%d\n",
		c.UpToDate, c.Updated, c.Cloned, c.SkippedDirty, c.SkippedDiverged,
		c.MissingRemote, c.Archived, c.Removed, c.Failed, c.Skipped)

	for _, tf := range result.TargetFailures {
		fmt.Fprintf(os.Stderr, "target %s failed: %v\n", tf.Target, tf.Err)
	}
	if result.CachePersistErr != nil {
		fmt.Fprintln(os.Stderr, "warning: cache was not persisted:", result.CachePersistErr)
	}

	if hasAuthFailure(result.TargetFailures) {
		return exitAuthFailure
	}
	if hasProviderFailure(result.TargetFailures) {
		return exitProviderFailed
	}
	if len(result.TargetFailures) > 0 || len(result.RepoFailures) > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func hasAuthFailure(failures []mirror.TargetFailure) bool {
	for _, f := range failures {
		var merr *mirror.Error
		if errors.As(f.Err, &merr) && merr.Category == mirror.ErrCategoryAuth {
			return true
		}
	}
	return false
}

func hasProviderFailure(failures []mirror.TargetFailure) bool {
	for _, f := range failures {
		var merr *mirror.Error
		if errors.As(f.Err, &merr) && (merr.Category == mirror.ErrCategoryTransientProvider || merr.Category == mirror.ErrCategoryPermanentProvider || merr.Category == mirror.ErrCategoryRateLimited) {
			return true
		}
	}
	return false
}

// newFlagSet builds a FlagSet that reports parse errors to the caller
// instead of exiting the process itself, so every subcommand can return
// its own exit code.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
