package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/remsync/remsync/internal/rmsdk"
)

// DeviceUploader is the slice of the device API the coordinator needs.
type DeviceUploader interface {
	Navigate(ctx context.Context, folderID string) error
	Upload(ctx context.Context, params *rmsdk.UploadParams) error
}

// Coordinator pushes prepared files to the device one at a time. The
// device's embedded web server files uploads into the folder it served
// last, so the coordinator navigates to the target once and then keeps
// the whole batch on that folder. Uploads are sequential: the server is
// a single-board appliance, not a fleet.
type Coordinator struct {
	device     DeviceUploader
	onProgress func(uploadName string, fraction float64)
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithUploadProgress registers a per-file progress observer.
func WithUploadProgress(fn func(uploadName string, fraction float64)) CoordinatorOption {
	return func(c *Coordinator) { c.onProgress = fn }
}

// NewCoordinator builds a coordinator over a device connection.
func NewCoordinator(device DeviceUploader, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{device: device}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadBatch sends every task to folderID (empty means the root) and
// returns the tasks with terminal statuses in input order. One failed
// upload never aborts the rest; cancellation fails the remaining tasks
// without starting them.
func (c *Coordinator) UploadBatch(ctx context.Context, folderID string, tasks []UploadTask) []UploadTask {
	results := make([]UploadTask, len(tasks))
	copy(results, tasks)

	if len(results) == 0 {
		return results
	}

	// Point the device at the target folder before the first upload.
	if err := c.device.Navigate(ctx, folderID); err != nil {
		for i := range results {
			results[i].Status = TaskFailed
			results[i].Detail = "cannot open target folder on device"
			results[i].Err = err
		}
		return results
	}

	for i := range results {
		if err := ctx.Err(); err != nil {
			results[i].Status = TaskFailed
			results[i].Detail = "canceled before upload"
			results[i].Err = err
			continue
		}
		results[i] = c.uploadOne(ctx, results[i])
	}

	return results
}

func (c *Coordinator) uploadOne(ctx context.Context, task UploadTask) UploadTask {
	info, err := os.Stat(task.SourcePath)
	if err != nil {
		task.Status = TaskFailed
		task.Detail = "prepared file disappeared before upload"
		task.Err = err
		return task
	}
	task.Size = info.Size()

	params := &rmsdk.UploadParams{
		FilePath:   task.SourcePath,
		UploadName: task.UploadName,
	}
	if c.onProgress != nil {
		name := task.UploadName
		params.Callback = func(uploaded, total int64) {
			if total > 0 {
				c.onProgress(name, float64(uploaded)/float64(total))
			}
		}
	}

	start := time.Now()
	if err := c.device.Upload(ctx, params); err != nil {
		task.Status = TaskFailed
		task.Detail = uploadFailureDetail(err)
		task.Err = err
		return task
	}
	task.Elapsed = time.Since(start)
	task.Status = TaskSent

	slog.Info("uploaded",
		"name", task.UploadName,
		"size", humanize.Bytes(uint64(task.Size)),
		"took", task.Elapsed.Round(time.Millisecond))
	return task
}

func uploadFailureDetail(err error) string {
	if status, ok := rmsdk.HTTPStatus(err); ok {
		return fmt.Sprintf("device rejected upload (HTTP %d)", status)
	}
	if rmsdk.IsUnreachable(err) {
		return "device unreachable during upload"
	}
	return err.Error()
}
