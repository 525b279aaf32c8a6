package state

import (
	"errors"
	"sync"
	"testing"
)

func TestStartRejectsSecondCaller(t *testing.T) {
	s := New()
	if !s.Start("job-1", 1700000000) {
		t.Fatal("first Start should succeed")
	}
	if s.Start("job-2", 1700000001) {
		t.Fatal("second concurrent Start should be rejected, not queued")
	}
	s.Finish(nil)
	if !s.Start("job-3", 1700000002) {
		t.Fatal("Start should succeed again once the gate is released")
	}
}

func TestStartIsAtomicUnderConcurrency(t *testing.T) {
	s := New()
	const attempts = 64
	var wg sync.WaitGroup
	successes := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- s.Start("job", 1700000000)
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for ok := range successes {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner of the single-flight gate, got %d", won)
	}
}

func TestFinishRecordsOutcome(t *testing.T) {
	s := New()
	s.Start("job-1", 1700000000)
	s.Finish(errors.New("boom"))

	snap := s.Snapshot()
	if snap.Syncing {
		t.Error("Finish should clear the syncing flag")
	}
	if snap.LastSyncStatus != "failed" {
		t.Errorf("expected last_sync_status=failed, got %q", snap.LastSyncStatus)
	}
	if snap.LastSyncMessage != "boom" {
		t.Errorf("expected error message to be recorded, got %q", snap.LastSyncMessage)
	}
	if snap.LastSyncTimestamp != 1700000000 {
		t.Errorf("expected last_sync_timestamp to be retained, got %d", snap.LastSyncTimestamp)
	}
}

func TestFinishRecordsSuccess(t *testing.T) {
	s := New()
	s.Start("job-1", 1700000000)
	s.Finish(nil)

	snap := s.Snapshot()
	if snap.LastSyncStatus != "success" {
		t.Errorf("expected last_sync_status=success, got %q", snap.LastSyncStatus)
	}
}
