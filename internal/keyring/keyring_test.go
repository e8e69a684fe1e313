package keyring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/repomirror/gitmirror/internal/model"
)

func TestStore_SetThenGet(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	if err := s.Set(model.ProviderGitHub, "github.com", "acme", "pat", "s3cr3t"); err != nil {
		t.Fatal(err)
	}

	secret, ok, err := s.Get(model.ProviderGitHub, "github.com", "acme", "pat")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || secret != "s3cr3t" {
		t.Fatalf("expected to find the stored secret, got %q (ok=%v)", secret, ok)
	}
}

func TestStore_GetMissingIdentityNotFound(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	_, ok, err := s.Get(model.ProviderGitHub, "github.com", "acme", "pat")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no secret to be found in an empty store")
	}
}

func TestStore_SetReplacesExistingSecretForSameIdentity(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	if err := s.Set(model.ProviderGitHub, "github.com", "acme", "pat", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(model.ProviderGitHub, "github.com", "acme", "pat", "second"); err != nil {
		t.Fatal(err)
	}

	secret, ok, err := s.Get(model.ProviderGitHub, "github.com", "acme", "pat")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || secret != "second" {
		t.Fatalf("expected the replaced secret, got %q", secret)
	}
}

func TestStore_DistinctScopesDoNotCollide(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	if err := s.Set(model.ProviderGitHub, "github.com", "acme", "pat", "acme-secret"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(model.ProviderGitHub, "github.com", "other", "pat", "other-secret"); err != nil {
		t.Fatal(err)
	}

	secret, ok, err := s.Get(model.ProviderGitHub, "github.com", "acme", "pat")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || secret != "acme-secret" {
		t.Fatalf("expected acme's own secret, got %q", secret)
	}
}

func TestAuthResolver_ResolveReturnsStoredCredential(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	target := model.Target{
		Name:          "t1",
		Provider:      model.ProviderGitHub,
		BaseURL:       "github.com",
		ScopeSegments: []string{"acme"},
		KeyringKey:    "pat",
	}
	scope, err := target.Scope()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(target.Provider, target.BaseURL, scope.String(), target.KeyringKey, "s3cr3t"); err != nil {
		t.Fatal(err)
	}

	r := &AuthResolver{Store: s}
	auth, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if auth.Token != "s3cr3t" || auth.Username != "pat" {
		t.Fatalf("unexpected auth %+v", auth)
	}
}

func TestAuthResolver_ResolveErrorsWhenNoCredentialStored(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keyring.json"))
	target := model.Target{Name: "t1", Provider: model.ProviderGitHub, BaseURL: "github.com", KeyringKey: "pat"}

	r := &AuthResolver{Store: s}
	if _, err := r.Resolve(context.Background(), target); err == nil {
		t.Fatal("expected an error when no credential is stored")
	}
}
