// Package gitlab implements the provider adapter for GitLab.com and
// self-hosted GitLab instances, paginating via the x-next-page response
// header the way GitLab's own REST API documents.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
	"github.com/repomirror/gitmirror/internal/providers/httpx"
)

const defaultBaseURL = "https://gitlab.com/api/v4"

// Adapter implements providers.Adapter for GitLab.
type Adapter struct {
	client *httpx.Client
}

// New creates a GitLab Adapter.
func New(client *httpx.Client) *Adapter {
	return &Adapter{client: client}
}

// Kind returns model.ProviderGitLab.
func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitLab }

func apiBase(baseURL string) string {
	if baseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/")
}

func (a *Adapter) authenticate(req *http.Request, auth model.RepoAuth) {
	if auth.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", auth.Token)
	}
}

// ValidateAuth confirms the token authenticates against the API.
func (a *Adapter) ValidateAuth(ctx context.Context, baseURL string, auth model.RepoAuth) error {
	req, err := http.NewRequest(http.MethodGet, apiBase(baseURL)+"/user", nil)
	if err != nil {
		return err
	}
	a.authenticate(req, auth)
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("gitlab auth validation failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("gitlab token rejected (401)")
	}
	return nil
}

// HealthCheck confirms the GitLab API is reachable.
func (a *Adapter) HealthCheck(ctx context.Context, baseURL string) error {
	req, err := http.NewRequest(http.MethodGet, apiBase(baseURL)+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("gitlab health check failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// TokenScopes always reports unsupported: GitLab's personal access
// token API requires the token's own ID to introspect it, which the
// core never has (only the opaque secret string is resolved from the
// keyring).
func (a *Adapter) TokenScopes(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error) {
	return nil, providers.ErrTokenScopesUnsupported
}

type projectJSON struct {
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	DefaultBranch     string `json:"default_branch"`
	Archived          bool   `json:"archived"`
	EmptyRepo         bool   `json:"empty_repo"`
}

// ListRepos lists every project under a group, including nested
// subgroups, following x-next-page until it is "" or "0".
func (a *Adapter) ListRepos(ctx context.Context, baseURL string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error) {
	groupPath := scope.String()
	encoded := url.QueryEscape(groupPath)

	reqURL := fmt.Sprintf("%s/groups/%s/projects?per_page=100&include_subgroups=true&simple=false", apiBase(baseURL), encoded)
	var out []model.RemoteRepo

	for reqURL != "" {
		req, err := http.NewRequest(http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		a.authenticate(req, auth)

		resp, err := a.client.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("listing gitlab projects for group %s: %w", groupPath, err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("listing gitlab projects for group %s: status %d", groupPath, resp.StatusCode)
		}

		var page []projectJSON
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding gitlab project list: %w", err)
		}
		next := resp.Header.Get("x-next-page")
		resp.Body.Close()

		for _, p := range page {
			out = append(out, model.RemoteRepo{
				ID:            model.NewRepoID(model.ProviderGitLab, scope, p.Name, ""),
				Name:          p.Name,
				CloneURL:      p.HTTPURLToRepo,
				DefaultBranch: p.DefaultBranch,
				Archived:      p.Archived,
				Empty:         p.EmptyRepo,
			})
		}

		if next == "" || next == "0" {
			reqURL = ""
		} else {
			reqURL = fmt.Sprintf("%s/groups/%s/projects?per_page=100&include_subgroups=true&simple=false&page=%s", apiBase(baseURL), encoded, next)
		}
	}

	return out, nil
}
