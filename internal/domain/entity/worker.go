package entity

import "time"

// WorkerState is the lifecycle state of one browser session.
//
// Transitions: Stopped -> Starting -> Running -> Stopped, any -> Error on an
// initialization or teardown fault, Error -> Starting on an explicit restart.
type WorkerState string

const (
	WorkerStopped  WorkerState = "stopped"
	WorkerStarting WorkerState = "starting"
	WorkerRunning  WorkerState = "running"
	WorkerError    WorkerState = "error"
)

// WorkerInfo is the persisted metadata of one worker. The live session handle
// never survives a restart; on rehydration State is forced to Stopped and
// Busy to false.
type WorkerInfo struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	State      WorkerState `json:"state"`
	Busy       bool        `json:"busy"`
	CreatedAt  time.Time   `json:"created_at"`
	LastUsedAt time.Time   `json:"last_used_at,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
}

// PoolStats is a point-in-time capacity snapshot.
// Invariant: Busy <= Running <= Total.
type PoolStats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Available int `json:"available"`
	Busy      int `json:"busy"`
}
