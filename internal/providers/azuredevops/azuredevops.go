// Package azuredevops implements the provider adapter for Azure DevOps
// Services, the one platform in the spec's closed set the teacher never
// touched — its pagination (a continuation token) and auth (HTTP Basic
// with an empty username) are both distinct from the GitHub/GitLab
// pattern the teacher's github_client.go modeled.
package azuredevops

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
	"github.com/repomirror/gitmirror/internal/providers/httpx"
)

const apiVersion = "7.1"

// Adapter implements providers.Adapter for Azure DevOps.
type Adapter struct {
	client *httpx.Client
}

// New creates an Azure DevOps Adapter.
func New(client *httpx.Client) *Adapter {
	return &Adapter{client: client}
}

// Kind returns model.ProviderAzureDevOps.
func (a *Adapter) Kind() model.ProviderKind { return model.ProviderAzureDevOps }

func (a *Adapter) authenticate(req *http.Request, auth model.RepoAuth) {
	if auth.Token == "" {
		return
	}
	// Azure DevOps PAT auth uses HTTP Basic with an empty username.
	creds := base64.StdEncoding.EncodeToString([]byte(":" + auth.Token))
	req.Header.Set("Authorization", "Basic "+creds)
}

// ValidateAuth confirms the PAT authenticates against the organization.
func (a *Adapter) ValidateAuth(ctx context.Context, baseURL string, auth model.RepoAuth) error {
	if baseURL == "" {
		return fmt.Errorf("azure devops requires an organization base URL")
	}
	reqURL := fmt.Sprintf("%s/_apis/connectionData?api-version=%s", baseURL, apiVersion)
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	a.authenticate(req, auth)
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("azure devops auth validation failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("azure devops PAT rejected (401)")
	}
	return nil
}

// HealthCheck confirms the organization's API is reachable.
func (a *Adapter) HealthCheck(ctx context.Context, baseURL string) error {
	reqURL := fmt.Sprintf("%s/_apis/connectionData?api-version=%s", baseURL, apiVersion)
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("azure devops health check failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// TokenScopes always reports unsupported: Azure DevOps PATs carry their
// granted scopes only in the token-creation UI, never in a response a
// holder of the opaque secret can query.
func (a *Adapter) TokenScopes(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error) {
	return nil, providers.ErrTokenScopesUnsupported
}

type repoJSON struct {
	Name          string `json:"name"`
	RemoteURL     string `json:"remoteUrl"`
	DefaultBranch string `json:"defaultBranch"`
	IsDisabled    bool   `json:"isDisabled"`
	Size          int64  `json:"size"`
	Project       struct {
		State string `json:"state"`
	} `json:"project"`
}

type repoListJSON struct {
	Value             []repoJSON `json:"value"`
	ContinuationToken string     `json:"continuationToken"`
}

type projectJSON struct {
	Name string `json:"name"`
}

type projectListJSON struct {
	Value             []projectJSON `json:"value"`
	ContinuationToken string        `json:"continuationToken"`
}

// listProjects enumerates every project in an organization, following the
// same continuation-token convention as ListRepos.
func (a *Adapter) listProjects(ctx context.Context, baseURL string, auth model.RepoAuth) ([]string, error) {
	continuation := ""
	var names []string
	for {
		reqURL := fmt.Sprintf("%s/_apis/projects?api-version=%s&$top=100", baseURL, apiVersion)
		if continuation != "" {
			reqURL += "&continuationToken=" + url.QueryEscape(continuation)
		}
		req, err := http.NewRequest(http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		a.authenticate(req, auth)

		resp, err := a.client.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("listing azure devops projects: %w", err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("listing azure devops projects: status %d", resp.StatusCode)
		}
		var page projectListJSON
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding azure devops project list: %w", err)
		}
		continuation = resp.Header.Get("x-ms-continuationtoken")
		resp.Body.Close()

		for _, p := range page.Value {
			names = append(names, p.Name)
		}
		if continuation == "" {
			break
		}
	}
	return names, nil
}

// listProjectRepos lists every repository in a single project, following
// the continuation token Azure DevOps returns in the
// x-ms-continuationtoken response header, as listProjects does. When
// projectName is non-empty, it is stamped onto every RemoteRepo so an
// org-wide listing can keep "{org}/{project}/{repo}" on disk.
func (a *Adapter) listProjectRepos(ctx context.Context, baseURL, project, projectName string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error) {
	continuation := ""
	var out []model.RemoteRepo

	for {
		reqURL := fmt.Sprintf("%s/%s/_apis/git/repositories?api-version=%s", baseURL, url.PathEscape(project), apiVersion)
		if continuation != "" {
			reqURL += "&continuationToken=" + url.QueryEscape(continuation)
		}

		req, err := http.NewRequest(http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		a.authenticate(req, auth)

		resp, err := a.client.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("listing azure devops repos for project %s: %w", project, err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("listing azure devops repos for project %s: status %d", project, resp.StatusCode)
		}

		var page repoListJSON
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding azure devops repo list: %w", err)
		}
		continuation = resp.Header.Get("x-ms-continuationtoken")
		resp.Body.Close()

		for _, r := range page.Value {
			out = append(out, model.RemoteRepo{
				ID:            model.NewRepoID(model.ProviderAzureDevOps, scope, r.Name, projectName),
				Name:          r.Name,
				CloneURL:      r.RemoteURL,
				DefaultBranch: r.DefaultBranch,
				Disabled:      r.IsDisabled,
				Archived:      r.Project.State == "deleted",
				Size:          r.Size,
				ProjectName:   projectName,
			})
		}

		if continuation == "" {
			break
		}
	}

	return out, nil
}

// ListRepos lists repositories for a target's scope. A scope of
// {org} lists every project in the organization and every repo within
// each, stamping RemoteRepo.ProjectName so on-disk paths stay
// "{org}/{project}/{repo}" per spec. A scope of {org}/{project} lists
// that project only.
func (a *Adapter) ListRepos(ctx context.Context, baseURL string, scope model.ProviderScope, auth model.RepoAuth) ([]model.RemoteRepo, error) {
	segs := scope.Segments()
	switch len(segs) {
	case 1:
		projects, err := a.listProjects(ctx, baseURL, auth)
		if err != nil {
			return nil, err
		}
		var out []model.RemoteRepo
		for _, p := range projects {
			repos, err := a.listProjectRepos(ctx, baseURL, p, p, scope, auth)
			if err != nil {
				return nil, err
			}
			out = append(out, repos...)
		}
		return out, nil
	case 2:
		return a.listProjectRepos(ctx, baseURL, segs[1], "", scope, auth)
	default:
		return nil, fmt.Errorf("azure devops scope must be {org} or {org}/{project}, got %q", scope.String())
	}
}
