package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a media processing job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid checks if the status is one of the known lifecycle states.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// FileType is the declared kind of media submitted for processing.
type FileType string

const (
	FileTypeVideo FileType = "VIDEO"
	FileTypeAudio FileType = "AUDIO"
	FileTypeImage FileType = "IMAGE"
)

// IsValid checks if the file type is supported.
func (f FileType) IsValid() bool {
	return f == FileTypeVideo || f == FileTypeAudio || f == FileTypeImage
}

const (
	// MaxFileNameLength bounds the stored file name.
	MaxFileNameLength = 255

	// MaxFileSize is the largest accepted upload (5 GB).
	MaxFileSize int64 = 5 << 30

	// ClaimProgress is the progress reported as soon as a worker claims a job.
	ClaimProgress = 5

	// MaxProgress is the progress of a completed job.
	MaxProgress = 100
)

// Job represents a media processing job throughout its lifecycle.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	FileName    string     `json:"fileName"`
	FileSize    int64      `json:"fileSize"`
	FileType    FileType   `json:"fileType"`
	CallbackURL *string    `json:"callbackUrl"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Priority    int        `json:"priority"`
	LockedAt    *time.Time `json:"lockedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Result      *JobResult `json:"result,omitempty"`
}

// JobResult is the terminal output of a completed job, keyed 1:1 by job id.
type JobResult struct {
	JobID        uuid.UUID      `json:"-"`
	ProcessedAt  *time.Time     `json:"processedAt"`
	OutputFormat *string        `json:"outputFormat"`
	Duration     *int           `json:"duration"`
	Metadata     map[string]any `json:"metadata"`
}

// SubmitRequest carries validated submission metadata into the lifecycle controller.
type SubmitRequest struct {
	FileName    string   `json:"fileName" binding:"required,max=255"`
	FileSize    int64    `json:"fileSize" binding:"required,min=1,max=5368709120"`
	FileType    FileType `json:"fileType" binding:"required"`
	CallbackURL *string  `json:"callbackUrl,omitempty" binding:"omitempty,url"`
}

// ListFilter selects and paginates jobs for the query service.
type ListFilter struct {
	Status   JobStatus
	FileType FileType
	Page     int
	Limit    int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize applies defaults and the page-size ceiling.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset is the number of rows skipped for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ListResult is a single page of jobs.
type ListResult struct {
	Items      []*Job `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}

// NewListResult computes page metadata. TotalPages is never below 1.
func NewListResult(items []*Job, total int, f ListFilter) *ListResult {
	pages := (total + f.Limit - 1) / f.Limit
	if pages < 1 {
		pages = 1
	}
	if items == nil {
		items = make([]*Job, 0)
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: pages,
	}
}
