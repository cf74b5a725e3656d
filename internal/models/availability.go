package models

import "time"

// Status is the outcome of a reachability probe as stored in the log.
type Status int

const (
	StatusUnreachable Status = 0
	StatusReachable   Status = 1
)

// String implements fmt.Stringer.
func (s Status) String() string {
	if s == StatusReachable {
		return "up"
	}
	return "down"
}

// AvailabilityRecord is one row of the availability log.
type AvailabilityRecord struct {
	DeviceID  int       `json:"device_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CycleReport summarises a single monitoring pass.
type CycleReport struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Records    []AvailabilityRecord `json:"records"`
}
