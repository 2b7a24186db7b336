package models

import (
	"time"
)

// Record statuses persisted in the store. Which key a record lives under
// determines what readers report; Status makes each record self-describing.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

// StatusWaiting is the externally reported label for a pending job.
const StatusWaiting = "waiting"

// VideoRequest is a submission to turn an annotated frame into a video.
type VideoRequest struct {
	StartingImage   []byte
	EndingImage     []byte
	CustomPrompt    string
	GlobalContext   string
	DurationSeconds int
	UserID          string
}

// HasEndingImage reports whether the request runs in first/last-frame mode.
func (r VideoRequest) HasEndingImage() bool {
	return len(r.EndingImage) > 0
}

// Metadata is auxiliary data attached to a finished job.
type Metadata struct {
	AnnotationDescription string `json:"annotation_description"`
}

// Record is the stored shape of a job under any of its keys.
type Record struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	JobStartTime time.Time  `json:"job_start_time"`
	JobEndTime   *time.Time `json:"job_end_time,omitempty"`
	VideoURL     string     `json:"video_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	Metadata     *Metadata  `json:"metadata,omitempty"`
}

// JobStatus is what the status endpoint returns.
type JobStatus struct {
	Status       string     `json:"status"`
	JobStartTime time.Time  `json:"job_start_time"`
	JobEndTime   *time.Time `json:"job_end_time,omitempty"`
	VideoURL     string     `json:"video_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	Metadata     *Metadata  `json:"metadata,omitempty"`
}
