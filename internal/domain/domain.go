package domain

import (
	"errors"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// SplitJob is the locally-held view of a remote split job. Every poll
// overwrites it wholesale; it is never mutated in place.
type SplitJob struct {
	JobID     string          `json:"job_id"`
	StatusURL string          `json:"status_url"`
	Status    JobStatus       `json:"status"`
	Documents []SplitDocument `json:"documents,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type SplitDocument struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	Pages       []int  `json:"pages,omitempty"`
}

type RenameSuggestion struct {
	OriginalFilename  string `json:"original_filename"`
	SuggestedFilename string `json:"suggested_filename"`
	FolderPath        string `json:"folder_path,omitempty"`
}

// FileIdentity is captured before any remote call or mutation so the result
// stays attributable even if processing moves or deletes the source.
type FileIdentity struct {
	Path    string
	Size    int64
	ModTime time.Time
	HashSHA string
}

// ProcessResult is produced once per terminal attempt on a file.
type ProcessResult struct {
	Success       bool
	Path          string
	SuggestedName string
	DestPath      string
	Outputs       []string
	OutputCount   int
	Err           error
}

type QueueStats struct {
	Pending    int
	Active     int
	Completed  int
	Failed     int
	AvgLatency time.Duration
}

type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

type HealthStatus struct {
	Status          HealthState
	Uptime          time.Duration
	Queue           QueueStats
	LastProcessedAt time.Time
	Errors          int
}

// PermanentError marks a failure that cannot succeed on retry, such as a
// validation error or a rejected remote submission.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the task queue will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
