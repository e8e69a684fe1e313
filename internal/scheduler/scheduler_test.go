package scheduler

import (
	"testing"
	"time"

	"github.com/repomirror/gitmirror/internal/model"
)

func TestBucket_IsStableAcrossCalls(t *testing.T) {
	id := model.RepoID("repo-123")
	first := Bucket(id)
	for i := 0; i < 100; i++ {
		if Bucket(id) != first {
			t.Fatalf("expected Bucket(%q) to be stable, got %d then %d", id, first, Bucket(id))
		}
	}
}

func TestBucket_IsWithinRange(t *testing.T) {
	ids := []model.RepoID{"a", "b", "c", "azure-devops:acme/widgets", ""}
	for _, id := range ids {
		b := Bucket(id)
		if b < 0 || b >= BucketCount {
			t.Fatalf("Bucket(%q) = %d, out of range [0, %d)", id, b, BucketCount)
		}
	}
}

func TestTodayBucket_AdvancesOneBucketPerDay(t *testing.T) {
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)
	b0 := TodayBucket(day0)
	b1 := TodayBucket(day0.Add(24 * time.Hour))
	if (b0+1)%BucketCount != b1 {
		t.Fatalf("expected TodayBucket to advance by exactly one bucket per day, got %d then %d", b0, b1)
	}
}

func TestTodayBucket_SameWithinTheSameLocalDay(t *testing.T) {
	morning := time.Date(2026, 1, 1, 1, 0, 0, 0, time.Local)
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.Local)
	if TodayBucket(morning) != TodayBucket(night) {
		t.Fatal("expected the same bucket for two times within the same local day")
	}
}

func TestTodayBucket_DayBoundaryFollowsLocalTimeZoneNotUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)

	// 23:30 and 00:30 on the same local calendar day straddle a UTC day
	// boundary (04:30 UTC on Jan 2 vs 05:30 UTC on Jan 1) but must
	// still land in the same bucket.
	lateLocal := time.Date(2026, 1, 1, 23, 30, 0, 0, loc)
	earlyLocal := time.Date(2026, 1, 1, 0, 30, 0, 0, loc)
	if TodayBucket(lateLocal) != TodayBucket(earlyLocal) {
		t.Fatal("expected the same bucket for two times within the same local day despite crossing a UTC day boundary")
	}

	// Conversely, 23:30 and the following 00:30 fall on the same UTC
	// calendar day (both translate to UTC times after midnight UTC) but
	// are on different local calendar days, so they must land in
	// different buckets.
	nextLocalDay := time.Date(2026, 1, 2, 0, 30, 0, 0, loc)
	if TodayBucket(lateLocal) == TodayBucket(nextLocalDay) {
		t.Fatal("expected a new bucket once the local calendar day advances, even within the same UTC day")
	}
}

func TestDue_TrueExactlyWhenBucketMatchesToday(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	today := TodayBucket(now)

	var dueID, notDueID model.RepoID
	for i := 0; i < 1000; i++ {
		id := model.RepoID(string(rune('a' + i%26)) + string(rune(i)))
		if Bucket(id) == today && dueID == "" {
			dueID = id
		}
		if Bucket(id) != today && notDueID == "" {
			notDueID = id
		}
	}
	if dueID == "" || notDueID == "" {
		t.Fatal("failed to find both a due and a not-due id in the sample space")
	}
	if !Due(dueID, now) {
		t.Fatalf("expected %q to be due", dueID)
	}
	if Due(notDueID, now) {
		t.Fatalf("expected %q not to be due", notDueID)
	}
}
