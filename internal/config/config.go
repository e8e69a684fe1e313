// Package config loads and saves the mirror engine's target configuration
// file, validating its schema version the way the teacher's lock store
// validates vendor.lock.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/repomirror/gitmirror/internal/jsonstore"
	"github.com/repomirror/gitmirror/internal/model"
)

// CurrentSchemaVersion is the version written to newly saved config files.
const CurrentSchemaVersion = "1.0"

// MaxSupportedMajor is the highest config schema major version this
// binary understands. A config file with a higher major version was
// written by a newer release and must not be silently misinterpreted.
const MaxSupportedMajor = 1

// File is the on-disk representation of the mirror engine's configuration.
type File struct {
	SchemaVersion string         `json:"schema_version"`
	Targets       []model.Target `json:"targets"`
}

// Store loads and saves the configuration file.
type Store struct {
	store *jsonstore.Store[File]
}

// New creates a Store backed by the file at path. A missing file loads
// as an empty configuration rather than an error, mirroring first-run.
func New(path string) *Store {
	return &Store{store: jsonstore.New[File](path, true)}
}

// Path returns the configuration file path.
func (s *Store) Path() string {
	return s.store.Path()
}

// Load reads and validates the configuration file.
func (s *Store) Load() (File, error) {
	cfg, err := s.store.Load()
	if err != nil {
		return cfg, err
	}
	if cfg.SchemaVersion == "" {
		return cfg, nil // first run, nothing to validate
	}
	if err := checkSchemaVersion(cfg.SchemaVersion); err != nil {
		return File{}, err
	}
	if err := validateTargets(cfg.Targets); err != nil {
		return File{}, err
	}
	return cfg, nil
}

// validateTargets rejects a config with two targets sharing the same
// (provider_kind, host, scope_segments) identity tuple, per spec §3's
// Target invariant.
func validateTargets(targets []model.Target) error {
	seen := make(map[string]string, len(targets))
	for _, t := range targets {
		key := string(t.Provider) + "\x00" + t.BaseURL + "\x00" + strings.Join(t.ScopeSegments, "/")
		if other, ok := seen[key]; ok {
			return fmt.Errorf("targets %q and %q share the same provider/host/scope; two targets with the same tuple are forbidden", other, t.Name)
		}
		seen[key] = t.Name
	}
	return nil
}

// Save writes the configuration file, stamping the current schema version.
func (s *Store) Save(cfg File) error {
	cfg.SchemaVersion = CurrentSchemaVersion
	return s.store.Save(cfg)
}

func checkSchemaVersion(version string) error {
	major, _, err := parseVersion(version)
	if err != nil {
		return fmt.Errorf("parse config schema version: %w", err)
	}
	if major > MaxSupportedMajor {
		return fmt.Errorf(
			"config schema version %q requires a newer build of this tool\n"+
				"  this build supports schema v%d.x, but the config file is v%d.x",
			version, MaxSupportedMajor, major)
	}
	return nil
}

func parseVersion(version string) (major, minor int, err error) {
	parts := strings.Split(version, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schema version format %q (expected major.minor)", version)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid major version %q: %w", parts[0], err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minor version %q: %w", parts[1], err)
	}
	if major < 0 || minor < 0 {
		return 0, 0, fmt.Errorf("negative version numbers not allowed: %q", version)
	}
	return major, minor, nil
}

// FindTarget returns the named target, or false if no target by that
// name is configured.
func (f File) FindTarget(name string) (model.Target, bool) {
	for _, t := range f.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return model.Target{}, false
}
