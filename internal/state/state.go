// Package state holds the synchronizer's process-wide mutable state: the
// single-flight sync gate and the bookkeeping the status endpoint reports.
package state

import (
	"sync"
)

// Status is a point-in-time snapshot of the synchronizer's state, safe to
// serialize directly to JSON for the status endpoint. Field names and the
// last_sync_status enum ("success"/"failed") follow the AppState contract.
type Status struct {
	Syncing           bool   `json:"syncing"`
	CurrentJobID      string `json:"current_job_id,omitempty"`
	LastSyncTimestamp int64  `json:"last_sync_timestamp"`
	LastSyncStatus    string `json:"last_sync_status,omitempty"`
	LastSyncMessage   string `json:"last_sync_message,omitempty"`
}

// State is the synchronizer's single piece of mutable shared state. The
// syncing flag is the single-flight gate: Start reports whether the caller
// won the race to become the one running sync, under the same lock that
// reads it - a second concurrent caller is rejected, never queued.
type State struct {
	mu sync.Mutex

	syncing   bool
	jobID     string
	timestamp int64

	lastStatus  string
	lastMessage string
}

// New returns an idle State.
func New() *State {
	return &State{}
}

// Start attempts to claim the single-flight gate for jobID at the given
// sync timestamp. It returns false without side effects if a sync is
// already running.
func (s *State) Start(jobID string, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	s.jobID = jobID
	s.timestamp = timestamp
	return true
}

// Finish releases the gate and records the outcome of the job that held it.
func (s *State) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	if err != nil {
		s.lastStatus = "failed"
		s.lastMessage = err.Error()
	} else {
		s.lastStatus = "success"
		s.lastMessage = "sync completed successfully"
	}
}

// Snapshot returns the current Status.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Syncing:           s.syncing,
		CurrentJobID:      s.jobID,
		LastSyncTimestamp: s.timestamp,
		LastSyncStatus:    s.lastStatus,
		LastSyncMessage:   s.lastMessage,
	}
}
