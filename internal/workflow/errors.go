package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by operations on a torn-down controller.
	ErrClosed = errors.New("migration session closed")
	// ErrBusy is returned when a submission or analysis is already running.
	ErrBusy = errors.New("another request is in progress")
	// ErrSuperseded is returned when a response arrived after the session was
	// reset or a newer submission replaced it. The response was discarded.
	ErrSuperseded = errors.New("request superseded")
)

// ValidationError is missing or invalid user input. It blocks step
// advancement and is shown inline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TimeoutError reports that the ceiling elapsed before the job reached a
// terminal status. The job may still be running on the backend.
type TimeoutError struct {
	Kind        JobKind
	MigrationID string
	Ceiling     time.Duration
}

func (e *TimeoutError) Error() string {
	subject := "Migration"
	if e.Kind == KindRepository {
		subject = "Repository migration"
	}
	return fmt.Sprintf("%s timed out after %s. The job may still be processing on the server; try again later.", subject, humanMinutes(e.Ceiling))
}

func humanMinutes(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		return d.String()
	}
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// JobFailedError carries the backend's failure message.
type JobFailedError struct {
	MigrationID string
	Message     string
}

const genericFailureMessage = "Migration failed. Please try again."

func (e *JobFailedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return genericFailureMessage
}
