package domain

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkItem is the payload carried by the work channel from submission to execution.
// Only the job id is authoritative; the rest is an immutable snapshot of submission metadata.
type WorkItem struct {
	JobID       uuid.UUID `json:"jobId"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	FileType    FileType  `json:"fileType"`
	CallbackURL *string   `json:"callbackUrl"`
}

// NewWorkItem snapshots the submission metadata of a persisted job.
func NewWorkItem(job *Job) *WorkItem {
	return &WorkItem{
		JobID:       job.ID,
		FileName:    job.FileName,
		FileSize:    job.FileSize,
		FileType:    job.FileType,
		CallbackURL: job.CallbackURL,
	}
}

// WorkMessage is a work item delivered by the channel together with its settlement handles.
type WorkMessage struct {
	Item    *WorkItem
	Attempt int

	// Redelivered is set when the broker hands the item out again, typically after a consumer
	// died holding it. Its key may already be gone because that consumer claimed it.
	Redelivered bool

	// KeyExpired is set when the item sat in the channel longer than its key lives.
	KeyExpired bool

	// Claim takes the item's key out of the channel index. It reports false when the key is
	// gone. For a first, unexpired delivery that means the item was removed (cancelled) or is a
	// duplicate, and it is acked and skipped.
	Claim func(ctx context.Context) (bool, error)

	// Ack settles the delivery as done.
	Ack func() error

	// Fail hands the delivery back to the channel's retry/dead-letter policy.
	Fail func(ctx context.Context, cause error) error
}

// LifecycleEvent is emitted when a job reaches a terminal state.
type LifecycleEvent struct {
	JobID      uuid.UUID `json:"jobId"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	FileName   string    `json:"fileName"`
	FileType   FileType  `json:"fileType"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	// CallbackURL is where the webhook sink delivers the event; not part of the payload.
	CallbackURL *string `json:"-"`
}

// NewLifecycleEvent builds the event for a job's current state.
func NewLifecycleEvent(job *Job, cause error) *LifecycleEvent {
	ev := &LifecycleEvent{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		FileName:    job.FileName,
		FileType:    job.FileType,
		OccurredAt:  job.UpdatedAt,
		CallbackURL: job.CallbackURL,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	return ev
}

// Validate checks submission metadata before it reaches the lifecycle controller.
func (r *SubmitRequest) Validate() error {
	name := strings.TrimSpace(r.FileName)
	if name == "" || len(r.FileName) > MaxFileNameLength {
		return ErrInvalidFileName
	}
	if r.FileSize < 1 || r.FileSize > MaxFileSize {
		return ErrInvalidFileSize
	}
	if !r.FileType.IsValid() {
		return ErrInvalidFileType
	}
	if r.CallbackURL != nil {
		u, err := url.Parse(*r.CallbackURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidCallbackURL
		}
	}
	return nil
}
