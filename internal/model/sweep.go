package model

import "time"

// SweepStatus represents the current state of an orchestrator sweep.
type SweepStatus string

const (
	SweepStatusRunning  SweepStatus = "running"
	SweepStatusComplete SweepStatus = "complete"
	SweepStatusFailed   SweepStatus = "failed"
)

// SweepKind distinguishes discovery sweeps from re-enrichment passes.
type SweepKind string

const (
	SweepKindDiscover SweepKind = "discover"
	SweepKindRescrape SweepKind = "rescrape"
)

// Sweep is one orchestrator run over a candidate list.
type Sweep struct {
	ID         string      `json:"id"`
	Kind       SweepKind   `json:"kind"`
	Status     SweepStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	SweepCounts
}

// SweepCounts holds the running progress counters of a sweep.
type SweepCounts struct {
	Candidates    int `json:"candidates"`
	Skipped       int `json:"skipped"`
	Processed     int `json:"processed"`
	Matched       int `json:"matched"`
	Persisted     int `json:"persisted"`
	Errored       int `json:"errored"`
	FailedBatches int `json:"failed_batches"`
}
