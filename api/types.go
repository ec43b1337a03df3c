// Package api holds the JSON shapes exchanged between the translation
// gateway and its clients.
package api

// Phase is the coarse lifecycle stage of a translation job.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Terminal reports whether no further phase changes can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// Language is one selectable target language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse is a point-in-time snapshot of a job.
type StatusResponse struct {
	JobID       string `json:"job_id,omitempty"`
	Phase       Phase  `json:"phase"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	Done        bool   `json:"done"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Route paths served by the gateway.
const (
	LanguagesPath  = "/api/languages"
	TranslatePath  = "/api/translate"
	StatusPrefix   = "/api/status/"
	DownloadPrefix = "/api/download/"
)

// Multipart field names of the translate request.
const (
	FileField       = "file"
	TargetLangField = "target_lang"
)

// DownloadPath returns the path of a finished job's artifact.
func DownloadPath(jobID string) string {
	return DownloadPrefix + jobID
}

// StatusPath returns the polling path of a job.
func StatusPath(jobID string) string {
	return StatusPrefix + jobID
}
