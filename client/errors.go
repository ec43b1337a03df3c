package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyFile is returned when the upload carries no bytes.
	ErrEmptyFile = errors.New("no file selected or file is empty")
	// ErrMissingLanguage is returned when no target language was chosen.
	ErrMissingLanguage = errors.New("target language is required")
	// ErrPollLimit is wrapped when polling exhausts its attempt or time budget.
	ErrPollLimit = errors.New("job did not finish within the polling limit")
	// ErrCancelled is returned after Cancel stopped a submission.
	ErrCancelled = errors.New("submission cancelled")
	// ErrSubmissionInProgress is returned by Submit while a job is still active.
	ErrSubmissionInProgress = errors.New("submission already in progress")
)

// TransportError reports a network failure or a non-2xx answer.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	// Detail is the "detail" field of a JSON error body, if any.
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: network failure, check your connection: %v", e.Op, e.Err)
	}
	msg := e.Detail
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		return fmt.Sprintf("%s: server returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Op, e.StatusCode, msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response whose shape does not match the contract.
type ProtocolError struct {
	Reason string
	Body   string
}

func (e *ProtocolError) Error() string {
	return "malformed server response: " + e.Reason
}

// JobError carries the message of a job the server reported as failed.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return e.Message
}

// LimitExceededError reports an upload above the size limit.
type LimitExceededError struct {
	Size  int64
	Limit int64
	// Err is the server answer when the server enforced the limit.
	Err error
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("File too large. Max %d MB allowed.", e.Limit>>20)
}

func (e *LimitExceededError) Unwrap() error {
	return e.Err
}
