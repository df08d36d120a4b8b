package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remsync/remsync/internal/config"
	"github.com/remsync/remsync/internal/convert"
	"github.com/remsync/remsync/internal/device"
	"github.com/remsync/remsync/internal/epub"
	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/rmsdk"
	"github.com/remsync/remsync/internal/utils"
	"github.com/remsync/remsync/internal/workspace"
)

// DeviceAPI is everything the service needs from the device connection.
// rmsdk.Client satisfies it; tests use fakes.
type DeviceAPI interface {
	Probe(ctx context.Context) error
	Documents(ctx context.Context, folderID string) ([]rmsdk.Entry, error)
	Navigate(ctx context.Context, folderID string) error
	Upload(ctx context.Context, params *rmsdk.UploadParams) error
}

// Service ties the pipeline together: cover staging, conversion, upload,
// journal. One Service serves one configured device.
type Service struct {
	cfg         *config.Config
	device      DeviceAPI
	ws          *workspace.Workspace
	journal     *Journal
	coordinator *Coordinator
	preset      preset.Preset

	converter convert.Converter
	scheduler *convert.Scheduler
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithConverter injects a converter instead of discovering ebook-convert.
func WithConverter(c convert.Converter) ServiceOption {
	return func(s *Service) { s.converter = c }
}

// NewService builds a service and opens its journal. Callers own ws's
// lifecycle (Setup/Unlock) and must Close the service when done.
func NewService(cfg *config.Config, dev DeviceAPI, ws *workspace.Workspace, opts ...ServiceOption) (*Service, error) {
	p, err := preset.PresetFor(cfg.DeviceModel(), cfg.PresetOverrides())
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		device:      dev,
		ws:          ws,
		journal:     NewJournal(ws.JournalPath),
		coordinator: NewCoordinator(dev),
		preset:      p,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.journal.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the journal.
func (s *Service) Close() error {
	return s.journal.Close()
}

// Journal exposes the upload journal for status reporting.
func (s *Service) Journal() *Journal {
	return s.journal
}

// Preset returns the resolved conversion preset.
func (s *Service) Preset() preset.Preset {
	return s.preset
}

// List builds a fresh snapshot of the device's library.
func (s *Service) List(ctx context.Context) (*device.Tree, error) {
	return device.BuildTree(ctx, s.device)
}

// Delete is refused: the device web interface has no delete endpoint. The
// returned error names the affected documents and nothing is sent.
func (s *Service) Delete(names ...string) error {
	slog.Warn("refusing delete, the device web interface cannot delete documents",
		"items", strings.Join(names, ", "))
	return &UnsupportedError{Op: "delete", Items: names}
}

// CreateFolder is refused: the device web interface has no folder-creation
// endpoint. Folders must be created on the tablet itself.
func (s *Service) CreateFolder(name string) error {
	slog.Warn("refusing folder creation, the device web interface cannot create folders",
		"folder", name)
	return &UnsupportedError{Op: "folder creation", Items: []string{name}}
}

// DeviceStatus is a point-in-time view for the status command.
type DeviceStatus struct {
	Address      string
	Connected    bool
	Model        string
	Documents    int
	Folders      int
	JournalCount int
	StagingBytes int64
}

// Status probes the device and summarizes local state. A disconnected
// device is a valid status, not an error.
func (s *Service) Status(ctx context.Context) (*DeviceStatus, error) {
	st := &DeviceStatus{
		Address: s.cfg.DeviceAddress,
		Model:   preset.DisplayName(s.cfg.DeviceModel()),
	}

	if err := s.device.Probe(ctx); err == nil {
		st.Connected = true
		tree, err := device.BuildTree(ctx, s.device)
		if err == nil {
			st.Documents = tree.DocumentCount()
			st.Folders = len(tree.Folders())
		} else {
			slog.Warn("connected but could not walk library", "error", err)
		}
	}

	if n, err := s.journal.Count(); err == nil {
		st.JournalCount = n
	}
	if b, err := s.ws.StagingSize(); err == nil {
		st.StagingBytes = b
	}
	return st, nil
}

// SendOptions tune one Send call.
type SendOptions struct {
	// Folder overrides the configured target folder.
	Folder string
	// Force sends documents the journal already knows.
	Force bool
}

// docWork carries one document through the pipeline stages.
type docWork struct {
	res        DocumentResult
	hash       string
	target     string // effective target format for this document
	prepared   string // post-cover path fed to conversion
	uploadPath string // terminal file handed to the coordinator
}

func (w *docWork) fail(detail string) {
	w.res.Status = TaskFailed
	w.res.Detail = detail
}

// Send pushes the given library files to the device. Every document gets a
// terminal result in input order; per-document failures never abort the
// batch. The returned error is reserved for batch-level failures such as
// an unreachable device during folder resolution.
func (s *Service) Send(ctx context.Context, paths []string, opts SendOptions) (*BatchResult, error) {
	result := &BatchResult{
		BatchID: uuid.NewString(),
		Started: time.Now(),
	}
	if len(paths) == 0 {
		result.Finished = time.Now()
		return result, nil
	}

	folderID, err := s.resolveTargetFolder(ctx, opts.Folder, result)
	if err != nil {
		return nil, err
	}
	result.FolderID = folderID

	work := make([]*docWork, len(paths))
	for i, path := range paths {
		work[i] = s.prepareDoc(path, folderID, opts.Force)
	}

	s.convertPending(ctx, work)
	s.uploadPending(ctx, folderID, work)

	for _, w := range work {
		result.Documents = append(result.Documents, w.res)
	}
	result.Finished = time.Now()

	slog.Info("send finished",
		"batch", result.BatchID,
		"sent", result.Sent(),
		"skipped", result.Skipped(),
		"failed", result.Failed(),
		"took", result.Finished.Sub(result.Started).Round(time.Millisecond))
	return result, nil
}

// resolveTargetFolder maps the requested folder to a device id. A missing
// folder falls back to the root with a warning on the batch; it never
// fails the send.
func (s *Service) resolveTargetFolder(ctx context.Context, override string, result *BatchResult) (string, error) {
	folderName := override
	if folderName == "" {
		folderName = s.cfg.Folder
	}
	result.FolderName = folderName
	if folderName == "" {
		return rmsdk.RootID, nil
	}

	tree, err := device.BuildTree(ctx, s.device)
	if err != nil {
		return "", fmt.Errorf("cannot read device library: %w", err)
	}

	id, err := tree.ResolveFolder(folderName)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, device.ErrFolderNotFound) {
		warning := fmt.Sprintf("folder %q not found on device, uploading to root", folderName)
		slog.Warn("target folder not found on device, uploading to root", "folder", folderName)
		result.Warnings = append(result.Warnings, warning)
		return rmsdk.RootID, nil
	}
	return "", err
}

// prepareDoc validates one source file, applies journal dedup and stages
// the cover for EPUBs.
func (s *Service) prepareDoc(path, folderID string, force bool) *docWork {
	w := &docWork{res: DocumentResult{SourcePath: path, Status: TaskPending}}

	resolved, err := utils.ResolvePath(path)
	if err != nil {
		w.fail("invalid path")
		return w
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	switch ext {
	case ".epub", ".pdf":
	default:
		w.fail(fmt.Sprintf("unsupported source format %q, the device accepts epub and pdf", strings.TrimPrefix(ext, ".")))
		return w
	}

	if !utils.FileExists(resolved) {
		w.fail("file not found")
		return w
	}

	// PDFs ship as-is regardless of the configured target format.
	w.target = s.cfg.Format
	if ext == ".pdf" {
		w.target = config.FormatPDF
	}

	stem := strings.TrimSuffix(filepath.Base(resolved), filepath.Ext(resolved))
	w.res.UploadName = stem + "." + w.target

	hash, err := utils.FileSHA256(resolved)
	if err != nil {
		w.fail("cannot read file")
		return w
	}
	w.hash = hash

	if !force {
		seen, err := s.journal.Seen(hash, folderID)
		if err != nil {
			slog.Warn("journal lookup failed, sending anyway", "file", filepath.Base(resolved), "error", err)
		} else if seen {
			w.res.Status = TaskSkipped
			w.res.Detail = "already sent, use force to resend"
			return w
		}
	}

	w.prepared = resolved
	if ext == ".epub" {
		staged, err := epub.EnsureCover(resolved, s.ws.StagingDir, epub.Options{
			InjectCover:  s.cfg.InjectCover,
			Title:        stem,
			PageWidthPt:  s.preset.PageWidthPt(),
			PageHeightPt: s.preset.PageHeightPt(),
		})
		if err != nil {
			w.fail(fmt.Sprintf("cannot prepare document: %v", err))
			return w
		}
		w.prepared = staged.Path
		if staged.Action != epub.CoverUnchanged {
			slog.Debug("cover prepared", "file", filepath.Base(resolved), "action", staged.Action.String())
		}
	}

	return w
}

// convertPending runs the conversion batch for documents still pending and
// records per-document outcomes.
func (s *Service) convertPending(ctx context.Context, work []*docWork) {
	var jobs []convert.Job
	var owners []*docWork
	needsConverter := false
	for _, w := range work {
		if w.res.Status != TaskPending {
			continue
		}
		job := convert.NewJob(w.prepared, w.target, s.preset)
		if job.NeedsConversion() {
			needsConverter = true
		}
		jobs = append(jobs, job)
		owners = append(owners, w)
	}
	if len(jobs) == 0 {
		return
	}

	if !needsConverter {
		for _, w := range owners {
			w.uploadPath = w.prepared
		}
		return
	}

	scheduler, err := s.ensureScheduler()
	if err != nil {
		// without a converter, documents already in their target format
		// still go through
		for i, w := range owners {
			if jobs[i].NeedsConversion() {
				w.fail(fmt.Sprintf("cannot convert: %v", err))
			} else {
				w.uploadPath = w.prepared
			}
		}
		return
	}

	resolved := scheduler.ConvertBatch(ctx, jobs)
	for i, w := range owners {
		job := resolved[i]
		if job.Status == convert.StatusSucceeded {
			w.uploadPath = job.OutputPath
		} else {
			w.fail(job.ErrorDetail)
		}
	}
}

// uploadPending hands the surviving documents to the coordinator and
// journals the ones that reached the device.
func (s *Service) uploadPending(ctx context.Context, folderID string, work []*docWork) {
	var tasks []UploadTask
	var owners []*docWork
	for _, w := range work {
		if w.res.Status != TaskPending || w.uploadPath == "" {
			continue
		}
		tasks = append(tasks, UploadTask{
			SourcePath: w.uploadPath,
			UploadName: w.res.UploadName,
			Status:     TaskPending,
		})
		owners = append(owners, w)
	}
	if len(tasks) == 0 {
		return
	}

	uploaded := s.coordinator.UploadBatch(ctx, folderID, tasks)
	for i, w := range owners {
		task := uploaded[i]
		w.res.Size = task.Size
		w.res.Elapsed = task.Elapsed
		w.res.Status = task.Status
		w.res.Detail = task.Detail

		if task.Status != TaskSent {
			continue
		}
		rec := &Record{
			ContentHash: w.hash,
			FolderID:    folderID,
			SourcePath:  w.res.SourcePath,
			UploadName:  w.res.UploadName,
			Size:        task.Size,
			UploadedAt:  time.Now(),
		}
		if err := s.journal.Set(rec); err != nil {
			slog.Warn("upload succeeded but journaling failed", "file", w.res.UploadName, "error", err)
		}
	}
}

func (s *Service) ensureScheduler() (*convert.Scheduler, error) {
	if s.scheduler != nil {
		return s.scheduler, nil
	}

	conv := s.converter
	if conv == nil {
		bin, err := convert.FindConverter(s.cfg.ConverterPath)
		if err != nil {
			return nil, err
		}
		slog.Debug("using converter", "bin", bin)
		conv = convert.NewEbookConvert(bin, s.ws.StagingDir,
			convert.WithProgress(func(sourcePath string, fraction float64) {
				slog.Debug("converting",
					"file", filepath.Base(sourcePath),
					"progress", fmt.Sprintf("%.0f%%", fraction*100))
			}))
	}

	s.scheduler = convert.NewScheduler(conv, convert.WithWorkers(s.cfg.Workers))
	return s.scheduler, nil
}
