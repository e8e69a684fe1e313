// Package scheduler assigns each repository to one of seven daily buckets
// so that a full mirror root syncs in roughly equal daily slices across a
// week, instead of every repository being due on every run.
package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/repomirror/gitmirror/internal/model"
)

// BucketCount is the number of buckets a repo_id can fall into.
const BucketCount = 7

// Bucket deterministically assigns a repo ID to one of BucketCount
// buckets. The hash is SHA-256 truncated to its first 8 bytes,
// interpreted as a big-endian uint64, taken mod BucketCount — ported
// verbatim (not reinvented) from the original stable_hash so that the
// same repo_id always lands in the same bucket regardless of Go map
// iteration order, process restarts, or host OS.
func Bucket(id model.RepoID) int {
	sum := sha256.Sum256([]byte(id))
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % uint64(BucketCount))
}

// TodayBucket returns the bucket that is due today, anchored to the
// calendar day in now's local time zone so that it advances by exactly
// one bucket at local midnight, not at UTC midnight.
func TodayBucket(now time.Time) int {
	y, m, d := now.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return int(days % int64(BucketCount))
}

// Due reports whether a repository's assigned bucket is due for the
// given day, i.e. whether it should be synced on this scheduler run.
func Due(id model.RepoID, now time.Time) bool {
	return Bucket(id) == TodayBucket(now)
}
