package progress_test

import (
	"errors"
	"testing"

	"github.com/snapvault/snapvault/pkg/progress"
)

func drain(t *testing.T, r *progress.Reporter) []progress.Event {
	t.Helper()
	var events []progress.Event
	for e := range r.Events() {
		events = append(events, e)
	}
	return events
}

func TestReporterStageSequence(t *testing.T) {
	r := progress.NewReporter(64)

	r.Discovery("Matching files")
	r.Preparation("Collecting metadata")
	for i := 1; i <= 25; i++ {
		r.Writing(i, 25, "/app/data/file.txt")
	}
	r.Finalizing("Moving archive into place")
	r.Complete("/backups/daily.zip", 4096)

	events := drain(t, r)

	expectedStages := []progress.Stage{
		progress.StageDiscovery,
		progress.StagePreparation,
		progress.StageWriting, // file 10
		progress.StageWriting, // file 20
		progress.StageWriting, // file 25, last
		progress.StageFinalizing,
		progress.StageCompleted,
	}
	if len(events) != len(expectedStages) {
		t.Fatalf("expected %d events, got %d: %+v", len(expectedStages), len(events), events)
	}
	for i, stage := range expectedStages {
		if events[i].Stage != stage {
			t.Errorf("event %d: expected stage %s, got %s", i, stage, events[i].Stage)
		}
	}

	last := events[len(events)-1]
	if !last.Completed || last.Percent != 100 || last.Error != "" {
		t.Errorf("unexpected terminal event: %+v", last)
	}
}

func TestReporterPercentBands(t *testing.T) {
	r := progress.NewReporter(16)
	r.Discovery("start")
	r.Writing(10, 20, "x")
	r.Writing(20, 20, "x")
	r.Finalizing("flush")
	r.Complete("/b.zip", 1)

	events := drain(t, r)

	if events[0].Percent != 0 {
		t.Errorf("discovery should start at 0, got %d", events[0].Percent)
	}
	if events[1].Percent != 55 {
		t.Errorf("halfway writing should be 55, got %d", events[1].Percent)
	}
	if events[2].Percent != 90 {
		t.Errorf("last write should reach 90, got %d", events[2].Percent)
	}
	if events[3].Percent != 90 {
		t.Errorf("finalizing should report 90, got %d", events[3].Percent)
	}

	prev := -1
	for i, e := range events {
		if e.Percent < prev {
			t.Errorf("event %d: percent went backwards (%d after %d)", i, e.Percent, prev)
		}
		prev = e.Percent
	}
}

func TestReporterFailTerminates(t *testing.T) {
	r := progress.NewReporter(16)
	r.Discovery("start")
	r.Fail(errors.New("disk full"))
	// Events after the terminal one are dropped, not deadlocked on.
	r.Writing(1, 1, "x")
	r.Complete("/never.zip", 0)

	events := drain(t, r)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	last := events[1]
	if last.Stage != progress.StageFailed || !last.Completed || last.Error != "disk full" {
		t.Errorf("unexpected terminal event: %+v", last)
	}
}
