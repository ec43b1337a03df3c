// shared/job.go
package shared

import (
	"errors"
	"time"

	"translator-api-scalable/api"
)

// ErrJobNotFound is wrapped by every store lookup of an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Job represents the state of a document translation task
type Job struct {
	ID               string     `json:"job_id"`
	FileName         string     `json:"file_name"`   // Name of the uploaded document as sent by the client
	TargetLang       string     `json:"target_lang"` // Language code chosen by the client
	Phase            api.Phase  `json:"phase"`
	Progress         int        `json:"progress"`
	Error            string     `json:"error,omitempty"`
	SourceKey        string     `json:"source_key,omitempty"` // Object key of the uploaded document
	ResultKey        string     `json:"result_key,omitempty"` // Object key of the translated artifact
	ResultName       string     `json:"result_name,omitempty"`
	DownloadEndpoint string     `json:"download_endpoint,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Status projects the job onto the snapshot served to polling clients.
func (j *Job) Status() api.StatusResponse {
	s := api.StatusResponse{
		JobID:    j.ID,
		Phase:    j.Phase,
		Progress: j.Progress,
		Done:     j.Phase == api.PhaseDone,
	}
	if j.Phase == api.PhaseError {
		s.Error = j.Error
		if s.Error == "" {
			s.Error = "translation failed"
		}
	}
	if s.Done {
		s.DownloadURL = j.DownloadEndpoint
	}
	return s
}

// SetProgress records p when it moves forward; progress never goes back.
func (j *Job) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// MarkProcessing moves a queued job into processing.
func (j *Job) MarkProcessing(now time.Time) {
	j.Phase = api.PhaseProcessing
	j.StartedAt = &now
}

// MarkDone finishes the job with its artifact.
func (j *Job) MarkDone(now time.Time, resultKey, resultName, downloadEndpoint string) {
	j.Phase = api.PhaseDone
	j.Progress = 100
	j.Error = ""
	j.ResultKey = resultKey
	j.ResultName = resultName
	j.DownloadEndpoint = downloadEndpoint
	j.CompletedAt = &now
}

// MarkFailed finishes the job with a human-readable reason.
func (j *Job) MarkFailed(now time.Time, reason string) {
	j.Phase = api.PhaseError
	j.Error = reason
	j.CompletedAt = &now
}
