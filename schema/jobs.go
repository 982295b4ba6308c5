package schema

// JobStatus is the lifecycle state z/OSMF reports for a batch job.
type JobStatus string

const (
	// JobStatusInput means the job is queued for execution.
	JobStatusInput JobStatus = "INPUT"
	// JobStatusActive means the job is running.
	JobStatusActive JobStatus = "ACTIVE"
	// JobStatusOutput means the job finished and its output is available.
	JobStatusOutput JobStatus = "OUTPUT"
)

// Job is the z/OSMF representation of a batch job.
type Job struct {
	JobID     string    `json:"jobid"`
	JobName   string    `json:"jobname"`
	Owner     string    `json:"owner,omitempty"`
	Status    JobStatus `json:"status,omitempty"`
	Type      string    `json:"type,omitempty"`
	Class     string    `json:"class,omitempty"`
	RetCode   *string   `json:"retcode,omitempty"`
	Subsystem string    `json:"subsystem,omitempty"`
	Phase     int       `json:"phase,omitempty"`
	PhaseName string    `json:"phase-name,omitempty"`
	URL       string    `json:"url,omitempty"`
	FilesURL  string    `json:"files-url,omitempty"`
}
