// Package providers defines the adapter interface every git hosting
// platform implements, and the closed registry that dispatches a Target
// to its adapter — generalized from the teacher's URL-parsing
// GitHostingProvider/ProviderRegistry pair to full inventory listing,
// auth validation, and health checks.
package providers

import (
	"context"
	"errors"

	"github.com/repomirror/gitmirror/internal/model"
)

// Adapter is implemented once per supported hosting platform.
type Adapter interface {
	// Kind returns the provider this adapter serves.
	Kind() model.ProviderKind

	// ValidateAuth checks that the given credentials are usable at all,
	// independent of any particular scope.
	ValidateAuth(ctx context.Context, baseURL string, auth model.RepoAuth) error

	// ListRepos returns every repository visible to auth within scope,
	// handling pagination internally.
	ListRepos(ctx context.Context, baseURL string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error)

	// HealthCheck performs a cheap call to confirm the platform is
	// reachable, used by mirrorctl's `health` and `token doctor` commands.
	HealthCheck(ctx context.Context, baseURL string) error

	// TokenScopes reports the permission scopes granted to auth, when the
	// platform exposes that without a dedicated credential-introspection
	// call. Returns ErrTokenScopesUnsupported when the platform has no
	// such signal, per spec's "token_scopes(auth) -> set<string> |
	// unsupported".
	TokenScopes(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error)
}

// ErrTokenScopesUnsupported is returned by TokenScopes when a platform
// has no way to report a token's scopes short of attempting every
// operation and observing which ones fail.
var ErrTokenScopesUnsupported = errors.New("token scope introspection is not supported by this provider")

// Registry dispatches a ProviderKind to its Adapter via a closed switch,
// matching the teacher's ProviderRegistry.DetectProvider — here the
// dispatch key is the target's configured kind rather than a sniffed URL,
// since Target.Provider is always explicit (spec data model §3).
type Registry struct {
	azureDevOps Adapter
	github      Adapter
	gitlab      Adapter
}

// NewRegistry builds a Registry from the three concrete adapters.
func NewRegistry(azureDevOps, github, gitlab Adapter) *Registry {
	return &Registry{azureDevOps: azureDevOps, github: github, gitlab: gitlab}
}

// For returns the adapter for the given provider kind, or an error if
// the kind is outside the closed set this registry supports.
func (r *Registry) For(kind model.ProviderKind) (Adapter, error) {
	switch kind {
	case model.ProviderAzureDevOps:
		return r.azureDevOps, nil
	case model.ProviderGitHub:
		return r.github, nil
	case model.ProviderGitLab:
		return r.gitlab, nil
	default:
		return nil, &UnsupportedProviderError{Kind: kind}
	}
}

// UnsupportedProviderError is returned when a target names a provider
// kind outside the closed set this build understands.
type UnsupportedProviderError struct {
	Kind model.ProviderKind
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider: " + string(e.Kind)
}
