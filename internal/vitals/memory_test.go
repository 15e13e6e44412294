package vitals_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/vitalsguard/internal/vitals"
)

func TestMemoryRepository_assignsID(t *testing.T) {
	repo := vitals.NewMemoryRepository()
	r := &vitals.Reading{PatientID: "p1", HeartRate: 80}
	if err := repo.SaveReading(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.ID == uuid.Nil {
		t.Error("SaveReading should assign an ID")
	}
}

func TestMemoryRepository_historyNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := vitals.NewMemoryRepository()
	for hr := 60; hr < 65; hr++ {
		repo.SaveReading(ctx, &vitals.Reading{PatientID: "p1", HeartRate: hr})
		repo.SaveReading(ctx, &vitals.Reading{PatientID: "p2", HeartRate: hr})
	}

	got, err := repo.History(ctx, "p1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	for i, want := range []int{64, 63, 62} {
		if got[i].PatientID != "p1" || got[i].HeartRate != want {
			t.Errorf("reading %d: got %s/%d, want p1/%d", i, got[i].PatientID, got[i].HeartRate, want)
		}
	}

	all, _ := repo.History(ctx, "p1", 0)
	if len(all) != 5 {
		t.Errorf("limit 0 should return everything, got %d", len(all))
	}
	if repo.Len() != 10 {
		t.Errorf("Len: got %d", repo.Len())
	}
}

func TestMemoryRepository_returnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := vitals.NewMemoryRepository()
	repo.SaveReading(ctx, &vitals.Reading{PatientID: "p1", HeartRate: 70})

	got, _ := repo.History(ctx, "p1", 1)
	got[0].HeartRate = 999

	again, _ := repo.History(ctx, "p1", 1)
	if again[0].HeartRate != 70 {
		t.Error("History must not expose stored readings")
	}
}
