// Package keyring implements the CLI-side credential store the core
// engine only ever reaches through the mirror.AuthResolver seam. The
// real secret store is an external collaborator per spec (out of core
// scope); this is cmd/mirrorctl's own implementation of that
// collaborator, not part of the engine.
package keyring

import (
	"context"
	"fmt"

	"github.com/repomirror/gitmirror/internal/jsonstore"
	"github.com/repomirror/gitmirror/internal/model"
)

// key identifies one stored secret: (provider_kind, host, scope_path, account).
type key struct {
	Provider model.ProviderKind `json:"provider"`
	Host     string             `json:"host"`
	Scope    string             `json:"scope"`
	Account  string             `json:"account"`
}

func (k key) string() string {
	return fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s", k.Provider, k.Host, k.Scope, k.Account)
}

type entry struct {
	Key    key    `json:"key"`
	Secret string `json:"secret"`
}

type document struct {
	Entries []entry `json:"entries"`
}

// Store is a flat-file credential store keyed by (provider, host, scope,
// account), the shape spec §6 defines for the keyring. It is a stand-in
// for a real OS keychain (macOS Keychain, Windows Credential Manager,
// the Secret Service on Linux) — wiring one of those is a CLI-packaging
// concern, not something any example repo in this corpus needed.
type Store struct {
	store *jsonstore.Store[document]
}

// New creates a Store backed by the file at path. Every Set rewrites
// the file through jsonstore's temp-file-plus-rename save, so the file
// ends up with the temp file's owner-only (0600) permissions.
func New(path string) *Store {
	return &Store{store: jsonstore.New[document](path, true)}
}

// Set stores (or replaces) the secret for a given identity.
func (s *Store) Set(provider model.ProviderKind, host, scope, account, secret string) error {
	doc, err := s.store.Load()
	if err != nil {
		return err
	}
	k := key{Provider: provider, Host: host, Scope: scope, Account: account}
	for i := range doc.Entries {
		if doc.Entries[i].Key.string() == k.string() {
			doc.Entries[i].Secret = secret
			return s.store.Save(doc)
		}
	}
	doc.Entries = append(doc.Entries, entry{Key: k, Secret: secret})
	return s.store.Save(doc)
}

// Get looks up the secret for a given identity. ok is false if none is stored.
func (s *Store) Get(provider model.ProviderKind, host, scope, account string) (secret string, ok bool, err error) {
	doc, err := s.store.Load()
	if err != nil {
		return "", false, err
	}
	k := key{Provider: provider, Host: host, Scope: scope, Account: account}
	for _, e := range doc.Entries {
		if e.Key.string() == k.string() {
			return e.Secret, true, nil
		}
	}
	return "", false, nil
}

// AuthResolver adapts a Store into the mirror.AuthResolver interface the
// orchestrator calls. Every target's credentials are looked up by its
// own KeyringKey as the account name, with the target's provider and
// base URL (host) and scope path as the rest of the identity tuple.
type AuthResolver struct {
	Store *Store
}

// Resolve implements mirror.AuthResolver.
func (r *AuthResolver) Resolve(ctx context.Context, target model.Target) (model.RepoAuth, error) {
	scope, err := target.Scope()
	if err != nil {
		return model.RepoAuth{}, err
	}
	secret, ok, err := r.Store.Get(target.Provider, target.BaseURL, scope.String(), target.KeyringKey)
	if err != nil {
		return model.RepoAuth{}, fmt.Errorf("reading keyring for target %s: %w", target.Name, err)
	}
	if !ok {
		return model.RepoAuth{}, fmt.Errorf("no credentials stored for target %s (run 'mirrorctl token set')", target.Name)
	}
	return model.RepoAuth{Username: target.KeyringKey, Token: secret}, nil
}
