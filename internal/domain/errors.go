package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobConflict is returned when the requested transition is illegal from the current state.
	ErrJobConflict = errors.New("job state conflict")

	// ErrStaleState is returned by the store when a conditional write finds a different status
	// than the caller read. Callers re-read and decide; it never reaches the HTTP layer.
	ErrStaleState = errors.New("job status changed concurrently")

	// ErrStoreUnavailable is returned when the job store is unreachable or rejects a write.
	ErrStoreUnavailable = errors.New("job store is currently unavailable")

	// ErrChannelUnavailable is returned when the work channel cannot publish or remove an item.
	ErrChannelUnavailable = errors.New("work channel is currently unavailable")

	// ErrProcessingFailure wraps an unrecoverable error raised by a pipeline stage.
	ErrProcessingFailure = errors.New("media processing failed")

	// ErrInvalidFileType is returned when an unsupported file type is submitted.
	ErrInvalidFileType = errors.New("invalid or unsupported file type")

	// ErrInvalidFileName is returned when the file name is empty or too long.
	ErrInvalidFileName = errors.New("file name must be between 1 and 255 characters")

	// ErrInvalidFileSize is returned when the file size is outside 1 byte..5 GB.
	ErrInvalidFileSize = errors.New("file size must be between 1 byte and 5GB")

	// ErrInvalidCallbackURL is returned when the callback URL is not an absolute http(s) URL.
	ErrInvalidCallbackURL = errors.New("callback URL must be an absolute http or https URL")

	// ErrInvalidListFilter is returned when a list filter names an unknown status or file type.
	ErrInvalidListFilter = errors.New("invalid status or fileType filter")

	// ErrPayloadTooLarge is returned when a request body exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("request body exceeds the size limit")

	// ErrRateLimitExceeded is returned when API rate limit is hit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded, try again later")
)
