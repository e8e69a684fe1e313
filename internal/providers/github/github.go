// Package github implements the provider adapter for GitHub and GitHub
// Enterprise, generalizing the teacher's single-endpoint license lookup
// (internal/core/github_client.go) into the full list/validate/health
// surface, paginated via the Link response header.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers/httpx"
)

const defaultBaseURL = "https://api.github.com"

// Adapter implements providers.Adapter for GitHub.
type Adapter struct {
	client *httpx.Client
}

// New creates a GitHub Adapter.
func New(client *httpx.Client) *Adapter {
	return &Adapter{client: client}
}

// Kind returns model.ProviderGitHub.
func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitHub }

func apiBase(baseURL string) string {
	if baseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/")
}

func (a *Adapter) authenticate(req *http.Request, auth model.RepoAuth) {
	if auth.Token != "" {
		req.Header.Set("Authorization", "token "+auth.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

// ValidateAuth confirms the token can authenticate against the API at all.
func (a *Adapter) ValidateAuth(ctx context.Context, baseURL string, auth model.RepoAuth) error {
	req, err := http.NewRequest(http.MethodGet, apiBase(baseURL)+"/user", nil)
	if err != nil {
		return err
	}
	a.authenticate(req, auth)
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("github auth validation failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("github token rejected (401)")
	}
	return nil
}

// HealthCheck confirms the GitHub API is reachable.
func (a *Adapter) HealthCheck(ctx context.Context, baseURL string) error {
	req, err := http.NewRequest(http.MethodGet, apiBase(baseURL)+"/zen", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("github health check failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// TokenScopes reads the scopes GitHub grants the token from the
// X-OAuth-Scopes header present on any authenticated API response; a
// fine-grained personal access token omits the header entirely, in
// which case scopes are simply unknown rather than unsupported.
func (a *Adapter) TokenScopes(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, apiBase(baseURL)+"/user", nil)
	if err != nil {
		return nil, err
	}
	a.authenticate(req, auth)
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("github token scope check failed: %w", err)
	}
	defer resp.Body.Close()

	raw := resp.Header.Get("X-OAuth-Scopes")
	if raw == "" {
		return nil, nil
	}
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes, nil
}

type repoJSON struct {
	Name          string `json:"name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
	Disabled      bool   `json:"disabled"`
	Size          int64  `json:"size"`
}

// ListRepos lists every repository under an org or user, trying the org
// endpoint first and falling back to the user endpoint on a 404 (the
// scope segment names either kind of account and the API distinguishes
// them by which endpoint accepts it), following the Link header's "next"
// relation until it is absent.
func (a *Adapter) ListRepos(ctx context.Context, baseURL string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error) {
	segs := scope.Segments()
	if len(segs) != 1 {
		return nil, fmt.Errorf("github scope must be a single org or user segment, got %q", scope.String())
	}
	account := segs[0]

	out, notFound, err := a.listFrom(ctx, fmt.Sprintf("%s/orgs/%s/repos?per_page=100&type=all", apiBase(baseURL), account), scope, auth)
	if err != nil {
		return nil, err
	}
	if notFound {
		out, _, err = a.listFrom(ctx, fmt.Sprintf("%s/users/%s/repos?per_page=100&type=all", apiBase(baseURL), account), scope, auth)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// listFrom pages through a single org-or-user repo listing endpoint. If
// the very first page 404s, it reports notFound so the caller can retry
// against the sibling endpoint instead of treating it as a hard failure.
func (a *Adapter) listFrom(ctx context.Context, firstURL string, scope model.ProviderScope, auth model.RepoAuth) (out []model.RemoteRepo, notFound bool, err error) {
	url := firstURL
	first := true
	for url != "" {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, false, err
		}
		a.authenticate(req, auth)

		resp, err := a.client.Do(ctx, req)
		if err != nil {
			return nil, false, fmt.Errorf("listing github repos from %s: %w", url, err)
		}
		if first && resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, true, nil
		}
		first = false
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, false, fmt.Errorf("listing github repos from %s: status %d", url, resp.StatusCode)
		}

		var page []repoJSON
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, false, fmt.Errorf("decoding github repo list: %w", err)
		}
		next := parseNextLink(resp.Header.Get("Link"))
		resp.Body.Close()

		for _, r := range page {
			out = append(out, model.RemoteRepo{
				ID:            model.NewRepoID(model.ProviderGitHub, scope, r.Name, ""),
				Name:          r.Name,
				CloneURL:      r.CloneURL,
				DefaultBranch: r.DefaultBranch,
				Archived:      r.Archived,
				Disabled:      r.Disabled,
				Empty:         r.Size == 0,
				Size:          r.Size,
			})
		}
		url = next
	}
	return out, false, nil
}

// parseNextLink extracts the "next" URL from a GitHub-style Link header:
// <https://api.github.com/...&page=2>; rel="next", <...>; rel="last"
func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		url := strings.TrimSpace(segs[0])
		url = strings.TrimPrefix(url, "<")
		url = strings.TrimSuffix(url, ">")
		for _, attr := range segs[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` {
				return url
			}
		}
	}
	return ""
}
