// Package sync drives the library-to-device pipeline: prepare covers,
// convert to the device page size, upload into the target folder, and
// remember what was sent.
package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupported marks operations the device's web interface has no
// endpoint for. They are refused up front, never attempted.
var ErrUnsupported = errors.New("not supported by the device web interface")

// UnsupportedError names the items an unsupported operation was asked to
// touch, so callers can show which documents were affected.
type UnsupportedError struct {
	Op    string
	Items []string
}

func (e *UnsupportedError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("%s is %v", e.Op, ErrUnsupported)
	}
	return fmt.Sprintf("%s is %v: %s", e.Op, ErrUnsupported, strings.Join(e.Items, ", "))
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// TaskStatus is the terminal state of one document in a batch.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSent    TaskStatus = "sent"
	TaskSkipped TaskStatus = "skipped"
	TaskFailed  TaskStatus = "failed"
)

// UploadTask is one file handed to the upload coordinator.
type UploadTask struct {
	// SourcePath is the local file to push (already converted/staged).
	SourcePath string
	// UploadName is the filename presented to the device.
	UploadName string

	Status  TaskStatus
	Detail  string
	Err     error
	Size    int64
	Elapsed time.Duration
}

// DocumentResult is the outcome for one requested document, keyed back to
// the caller's original path.
type DocumentResult struct {
	SourcePath string
	UploadName string
	Status     TaskStatus
	Detail     string
	Size       int64
	Elapsed    time.Duration
}

// BatchResult aggregates one send run.
type BatchResult struct {
	BatchID    string
	FolderName string
	FolderID   string
	Warnings   []string
	Documents  []DocumentResult
	Started    time.Time
	Finished   time.Time
}

// Sent counts documents that reached the device.
func (r *BatchResult) Sent() int { return r.count(TaskSent) }

// Skipped counts documents dropped because the journal already knows them.
func (r *BatchResult) Skipped() int { return r.count(TaskSkipped) }

// Failed counts documents that did not make it.
func (r *BatchResult) Failed() int { return r.count(TaskFailed) }

func (r *BatchResult) count(status TaskStatus) int {
	n := 0
	for _, d := range r.Documents {
		if d.Status == status {
			n++
		}
	}
	return n
}
