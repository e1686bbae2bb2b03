// pkg/schema/events.go
package schema

type SubmissionStage string

const (
	StageValidation SubmissionStage = "validation"
	StageForwarding SubmissionStage = "forwarding"
	StageAccepted   SubmissionStage = "accepted"
)

type FailureType string

const (
	FailureTypeValidation FailureType = "validation"
	FailureTypeTransport  FailureType = "transport"
)

// JobSubmitted is published once the worker has accepted a job.
type JobSubmitted struct {
	JobID             string          `json:"job_id"`
	CorrelationID     string          `json:"correlation_id"`
	Stage             SubmissionStage `json:"stage"`
	Status            JobStatus       `json:"status"`
	SanitizedFilename string          `json:"sanitized_filename"`
	MediaType         string          `json:"media_type"`
	Size              int64           `json:"size"`
	Options           Options         `json:"options"`
	ProcessingTime    int64           `json:"processing_time_ms"`
	HappenedAt        int64           `json:"happened_at"`
}

// SubmissionRejected is published when a submission never reaches the
// worker's registry.
type SubmissionRejected struct {
	CorrelationID  string          `json:"correlation_id"`
	Stage          SubmissionStage `json:"stage"`
	Code           string          `json:"code"`
	Error          string          `json:"error"`
	FailureType    FailureType     `json:"failure_type"`
	ProcessingTime int64           `json:"processing_time_ms"`
	HappenedAt     int64           `json:"happened_at"`
}
