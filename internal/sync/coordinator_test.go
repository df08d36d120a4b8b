package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remsync/remsync/internal/rmsdk"
)

func stagedTask(t *testing.T, dir, name string) UploadTask {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	return UploadTask{SourcePath: p, UploadName: name, Status: TaskPending}
}

func TestCoordinator_NavigatesOnceThenUploadsInOrder(t *testing.T) {
	dev := &fakeDevice{}
	dir := t.TempDir()
	tasks := []UploadTask{
		stagedTask(t, dir, "a.pdf"),
		stagedTask(t, dir, "b.pdf"),
		stagedTask(t, dir, "c.pdf"),
	}

	results := NewCoordinator(dev).UploadBatch(context.Background(), "f-books", tasks)

	assert.Equal(t, []string{"f-books"}, dev.navigatedTo(), "one navigation per batch")
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, dev.uploadNames())
	for i, task := range results {
		assert.Equal(t, TaskSent, task.Status, "task %d", i)
		assert.Equal(t, int64(8), task.Size, "task %d", i)
	}
}

func TestCoordinator_NavigateFailureFailsBatch(t *testing.T) {
	dev := &fakeDevice{
		navigateErr: &rmsdk.DeviceError{Kind: rmsdk.KindHTTP, Op: "list", Status: 404},
	}
	dir := t.TempDir()
	tasks := []UploadTask{stagedTask(t, dir, "a.pdf"), stagedTask(t, dir, "b.pdf")}

	results := NewCoordinator(dev).UploadBatch(context.Background(), "f-gone", tasks)

	assert.Empty(t, dev.uploadNames(), "no uploads after a failed navigation")
	for _, task := range results {
		assert.Equal(t, TaskFailed, task.Status)
		assert.Equal(t, "cannot open target folder on device", task.Detail)
	}
}

func TestCoordinator_FailureDoesNotStopSiblings(t *testing.T) {
	dev := &fakeDevice{}
	dev.uploadErr = func(name string) error {
		if name == "b.pdf" {
			return &rmsdk.DeviceError{Kind: rmsdk.KindUnreachable, Op: "upload", Err: errors.New("broken pipe")}
		}
		return nil
	}
	dir := t.TempDir()
	tasks := []UploadTask{
		stagedTask(t, dir, "a.pdf"),
		stagedTask(t, dir, "b.pdf"),
		stagedTask(t, dir, "c.pdf"),
	}

	results := NewCoordinator(dev).UploadBatch(context.Background(), "", tasks)

	assert.Equal(t, TaskSent, results[0].Status)
	assert.Equal(t, TaskFailed, results[1].Status)
	assert.Equal(t, "device unreachable during upload", results[1].Detail)
	assert.Equal(t, TaskSent, results[2].Status)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, dev.uploadNames())
}

func TestCoordinator_RejectionDetailCarriesStatus(t *testing.T) {
	dev := &fakeDevice{}
	dev.uploadErr = func(string) error {
		return &rmsdk.DeviceError{Kind: rmsdk.KindHTTP, Op: "upload", Status: 507}
	}
	dir := t.TempDir()

	results := NewCoordinator(dev).UploadBatch(context.Background(), "", []UploadTask{stagedTask(t, dir, "a.pdf")})

	require.Equal(t, TaskFailed, results[0].Status)
	assert.Equal(t, "device rejected upload (HTTP 507)", results[0].Detail)
}

func TestCoordinator_MissingPreparedFile(t *testing.T) {
	dev := &fakeDevice{}
	task := UploadTask{
		SourcePath: filepath.Join(t.TempDir(), "vanished.pdf"),
		UploadName: "vanished.pdf",
		Status:     TaskPending,
	}

	results := NewCoordinator(dev).UploadBatch(context.Background(), "", []UploadTask{task})

	require.Equal(t, TaskFailed, results[0].Status)
	assert.Equal(t, "prepared file disappeared before upload", results[0].Detail)
	assert.Empty(t, dev.uploadNames())
}

func TestCoordinator_CancellationStopsNewUploads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := &fakeDevice{}
	dev.onUpload = func(params *rmsdk.UploadParams) {
		if params.UploadName == "a.pdf" {
			cancel()
		}
	}
	dir := t.TempDir()
	tasks := []UploadTask{
		stagedTask(t, dir, "a.pdf"),
		stagedTask(t, dir, "b.pdf"),
		stagedTask(t, dir, "c.pdf"),
	}

	results := NewCoordinator(dev).UploadBatch(ctx, "", tasks)

	assert.Equal(t, TaskSent, results[0].Status, "in-flight upload completes")
	for _, task := range results[1:] {
		assert.Equal(t, TaskFailed, task.Status)
		assert.Equal(t, "canceled before upload", task.Detail)
		assert.ErrorIs(t, task.Err, context.Canceled)
	}
	assert.Equal(t, []string{"a.pdf"}, dev.uploadNames())
}

func TestCoordinator_ProgressCallback(t *testing.T) {
	dev := &fakeDevice{}
	dev.onUpload = func(params *rmsdk.UploadParams) {
		require.NotNil(t, params.Callback)
		params.Callback(512, 1024)
		params.Callback(1024, 1024)
	}

	var fractions []float64
	coord := NewCoordinator(dev, WithUploadProgress(func(name string, fraction float64) {
		assert.Equal(t, "a.pdf", name)
		fractions = append(fractions, fraction)
	}))

	dir := t.TempDir()
	results := coord.UploadBatch(context.Background(), "", []UploadTask{stagedTask(t, dir, "a.pdf")})

	require.Equal(t, TaskSent, results[0].Status)
	assert.Equal(t, []float64{0.5, 1.0}, fractions)
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	dev := &fakeDevice{}
	results := NewCoordinator(dev).UploadBatch(context.Background(), "f-books", nil)
	assert.Empty(t, results)
	assert.Empty(t, dev.navigatedTo(), "empty batches never touch the device")
}
