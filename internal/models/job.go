package models

import "time"

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobRecord is the durable status row of one registered job. Only the job
// engine's invocation wrapper writes these fields.
type JobRecord struct {
	Name          string     `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Status        JobStatus  `gorm:"type:varchar(20);not null;default:idle" json:"status"`
	LastExecution *time.Time `json:"last_execution,omitempty"`
	LastUpdated   time.Time  `gorm:"not null" json:"last_updated"`
	LastResult    string     `gorm:"type:text" json:"last_result"`
	LastError     string     `gorm:"type:text" json:"last_error"`
	Interval      string     `gorm:"type:varchar(20)" json:"interval"`
}

// TableName specifies the table name for JobRecord
func (JobRecord) TableName() string {
	return "jobs_history"
}

// IntervalDuration parses the interval string; zero means event-only
func (j *JobRecord) IntervalDuration() time.Duration {
	if j.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(j.Interval)
	if err != nil {
		return 0
	}
	return d
}

// Due reports whether a timer-triggered run is due at now
func (j *JobRecord) Due(now time.Time) bool {
	interval := j.IntervalDuration()
	if interval <= 0 {
		return false
	}
	if j.LastExecution == nil {
		return true
	}
	return now.Sub(*j.LastExecution) >= interval
}
