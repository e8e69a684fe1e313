package gitlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repomirror/gitmirror/internal/model"
	"github.com/repomirror/gitmirror/internal/providers"
	"github.com/repomirror/gitmirror/internal/providers/httpx"
)

func newAdapter() *Adapter {
	return New(httpx.New(http.DefaultClient, "test"))
}

func TestTokenScopes_AlwaysUnsupported(t *testing.T) {
	a := newAdapter()
	_, err := a.TokenScopes(context.Background(), "http://example.invalid", model.RepoAuth{})
	if err != providers.ErrTokenScopesUnsupported {
		t.Fatalf("expected ErrTokenScopesUnsupported, got %v", err)
	}
}

func TestValidateAuth_RejectsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newAdapter()
	if err := a.ValidateAuth(context.Background(), srv.URL, model.RepoAuth{Token: "bad"}); err == nil {
		t.Fatal("expected an error for a rejected token")
	}
}

func TestListRepos_PaginatesViaNextPageHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("x-next-page", "2")
			json.NewEncoder(w).Encode([]projectJSON{{Name: "first"}})
			return
		}
		w.Header().Set("x-next-page", "0")
		json.NewEncoder(w).Encode([]projectJSON{{Name: "second"}})
	}))
	defer srv.Close()

	a := newAdapter()
	scope, err := model.NewProviderScope("acme")
	if err != nil {
		t.Fatal(err)
	}
	repos, err := a.ListRepos(context.Background(), srv.URL, scope, model.RepoAuth{})
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 || repos[0].Name != "first" || repos[1].Name != "second" {
		t.Fatalf("expected both pages, got %v", repos)
	}
}

func TestListRepos_ErrorsOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := newAdapter()
	scope, err := model.NewProviderScope("acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ListRepos(context.Background(), srv.URL, scope, model.RepoAuth{}); err == nil {
		t.Fatal("expected an error for a 400 response")
	}
}
