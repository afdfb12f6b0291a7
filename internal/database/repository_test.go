package database

import (
	"testing"
	"time"

	"github.com/hugo/loupe/internal/models"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := Connect(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	return NewRepository(db)
}

func sessionEvent(kind string, generation uint64, at time.Time, verified bool) *models.SessionEvent {
	return &models.SessionEvent{
		Timestamp:     at,
		Kind:          kind,
		Generation:    generation,
		HotspotX:      127,
		HotspotY:      127,
		Verified:      verified,
		LatencyMicros: 1500,
	}
}

func TestCreateAndGetEventsSince(t *testing.T) {
	repo := testRepository(t)
	base := time.Now().Add(-time.Hour)

	for i, kind := range []string{models.KindAcquire, models.KindSwap, models.KindSwap} {
		ev := sessionEvent(kind, uint64(i+1), base.Add(time.Duration(i)*time.Minute), true)
		if err := repo.Create(ev); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	events, err := repo.GetEventsSince(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetEventsSince() error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Error("events not in arrival order")
		}
	}
	if events[0].Kind != models.KindAcquire {
		t.Errorf("first event kind = %q, want acquire", events[0].Kind)
	}
}

func TestGetEventsSinceFiltersByTime(t *testing.T) {
	repo := testRepository(t)
	base := time.Now().Add(-time.Hour)

	old := sessionEvent(models.KindAcquire, 1, base, true)
	recent := sessionEvent(models.KindSwap, 2, base.Add(30*time.Minute), true)
	for _, ev := range []*models.SessionEvent{old, recent} {
		if err := repo.Create(ev); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	events, err := repo.GetEventsSince(base.Add(15 * time.Minute))
	if err != nil {
		t.Fatalf("GetEventsSince() error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.KindSwap {
		t.Fatalf("got %d events, want only the recent swap", len(events))
	}
}

func TestGetLatest(t *testing.T) {
	repo := testRepository(t)

	latest, err := repo.GetLatest()
	if err != nil {
		t.Fatalf("GetLatest() on empty store error: %v", err)
	}
	if latest != nil {
		t.Fatal("GetLatest() on empty store returned an event")
	}

	base := time.Now().Add(-time.Hour)
	if err := repo.Create(sessionEvent(models.KindAcquire, 1, base, true)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.Create(sessionEvent(models.KindRelease, 2, base.Add(time.Minute), true)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	latest, err = repo.GetLatest()
	if err != nil {
		t.Fatalf("GetLatest() error: %v", err)
	}
	if latest == nil || latest.Kind != models.KindRelease {
		t.Fatalf("GetLatest() = %+v, want the release event", latest)
	}
}

func TestGetKindSummarySince(t *testing.T) {
	repo := testRepository(t)
	base := time.Now().Add(-time.Hour)

	events := []*models.SessionEvent{
		sessionEvent(models.KindAcquire, 1, base, true),
		sessionEvent(models.KindSwap, 2, base.Add(time.Minute), true),
		sessionEvent(models.KindSwap, 3, base.Add(2*time.Minute), false),
		sessionEvent(models.KindSwap, 4, base.Add(3*time.Minute), true),
	}
	for _, ev := range events {
		if err := repo.Create(ev); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	summaries, err := repo.GetKindSummarySince(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetKindSummarySince() error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d kinds, want 2", len(summaries))
	}

	// Ordered by event count descending: swaps first.
	if summaries[0].Kind != models.KindSwap || summaries[0].EventCount != 3 {
		t.Errorf("summary[0] = %+v, want 3 swaps", summaries[0])
	}
	if summaries[0].VerifiedCount != 2 {
		t.Errorf("swap verified count = %d, want 2", summaries[0].VerifiedCount)
	}
	if summaries[1].Kind != models.KindAcquire || summaries[1].EventCount != 1 {
		t.Errorf("summary[1] = %+v, want 1 acquire", summaries[1])
	}
}

func TestErrorLogs(t *testing.T) {
	repo := testRepository(t)
	base := time.Now().Add(-time.Hour)

	logs := []*models.ErrorLog{
		{Timestamp: base, Component: "grab", ErrorMsg: "pointer grab denied"},
		{Timestamp: base.Add(time.Minute), Component: "source", ErrorMsg: "capture failed"},
	}
	for _, l := range logs {
		if err := repo.CreateErrorLog(l); err != nil {
			t.Fatalf("CreateErrorLog() error: %v", err)
		}
	}

	count, err := repo.CountErrorsSince(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountErrorsSince() error: %v", err)
	}
	if count != 2 {
		t.Errorf("CountErrorsSince() = %d, want 2", count)
	}

	got, err := repo.GetErrorsSince(base.Add(30 * time.Second))
	if err != nil {
		t.Fatalf("GetErrorsSince() error: %v", err)
	}
	if len(got) != 1 || got[0].Component != "source" {
		t.Fatalf("GetErrorsSince() = %d entries, want only the source failure", len(got))
	}
}

func TestDeleteOldEvents(t *testing.T) {
	repo := testRepository(t)
	base := time.Now().Add(-48 * time.Hour)

	if err := repo.Create(sessionEvent(models.KindAcquire, 1, base, true)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.Create(sessionEvent(models.KindSwap, 2, time.Now(), true)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	deleted, err := repo.DeleteOldEvents(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteOldEvents() error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteOldEvents() = %d, want 1", deleted)
	}

	events, err := repo.GetEventsSince(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetEventsSince() error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.KindSwap {
		t.Fatalf("got %d events after delete, want only the recent swap", len(events))
	}
}

func TestClear(t *testing.T) {
	repo := testRepository(t)

	if err := repo.Create(sessionEvent(models.KindAcquire, 1, time.Now(), true)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.CreateErrorLog(&models.ErrorLog{Timestamp: time.Now(), Component: "loop", ErrorMsg: "x"}); err != nil {
		t.Fatalf("CreateErrorLog() error: %v", err)
	}

	if err := repo.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	events, err := repo.GetEventsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetEventsSince() error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after Clear(), want 0", len(events))
	}
	count, err := repo.CountErrorsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountErrorsSince() error: %v", err)
	}
	if count != 0 {
		t.Errorf("CountErrorsSince() = %d after Clear(), want 0", count)
	}
}
