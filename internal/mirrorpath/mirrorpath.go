// Package mirrorpath resolves and sanitizes the on-disk location of a
// mirrored repository and computes the archive destination used by the
// missing-remote "archive" policy.
package mirrorpath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// windowsReservedNames are device names Windows refuses to use as a file
// or directory name, with or without an extension (CON, CON.txt, ...).
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// sanitizeSegment strips characters that would escape the local root or
// confuse the filesystem (path separators, any ".." run, leading dots that
// would resolve to ".", null bytes), trims trailing dots/spaces that
// Windows silently drops, and renames a bare reserved device name so a
// repository legitimately named "con" or "nul" doesn't collide with one.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "..", "_")
	for strings.HasPrefix(s, ".") {
		s = s[1:]
	}
	s = strings.TrimRight(s, " .")
	if s == "" {
		s = "_"
	}
	base := s
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if windowsReservedNames[strings.ToUpper(base)] {
		s = "_" + s
	}
	return s
}

// RepoLocalPath computes the local directory a repository should be
// mirrored into: <root>/<provider_kind>/<scope_path>/<sanitized_repo_name>
// (spec §3). The result always stays within localRoot.
func RepoLocalPath(localRoot string, provider string, scopeSegments []string, repoName string) (string, error) {
	if localRoot == "" {
		return "", fmt.Errorf("local root must not be empty")
	}
	parts := make([]string, 0, len(scopeSegments)+2)
	parts = append(parts, sanitizeSegment(provider))
	for _, seg := range scopeSegments {
		parts = append(parts, sanitizeSegment(seg))
	}
	parts = append(parts, sanitizeSegment(repoName))

	joined := filepath.Join(parts...)
	full := filepath.Join(localRoot, joined)

	absRoot, err := filepath.Abs(localRoot)
	if err != nil {
		return "", fmt.Errorf("resolving local root: %w", err)
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolving repo path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absFull)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("sanitized repo path %q escapes local root %q", full, localRoot)
	}

	return full, nil
}

// ArchivePath computes the destination for a repository being moved
// aside by the missing-remote "archive" policy: a sibling "_archive"
// directory under the local root, namespaced by provider and scope,
// with a timestamp suffix to avoid collisions.
//
// suffix must already be sanitized for filesystem use (e.g. a
// "20060102-150405" timestamp, with "-2", "-3", ... appended by the
// caller on collision).
func ArchivePath(localRoot string, provider string, scopeSegments []string, repoName, suffix string) (string, error) {
	parts := []string{"_archive", sanitizeSegment(provider)}
	for _, seg := range scopeSegments {
		parts = append(parts, sanitizeSegment(seg))
	}
	name := sanitizeSegment(repoName)
	if suffix != "" {
		name = name + "-" + suffix
	}
	parts = append(parts, name)
	return filepath.Join(localRoot, filepath.Join(parts...)), nil
}
