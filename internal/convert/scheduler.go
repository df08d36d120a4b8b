package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/utils"
)

const (
	minConvertWorkers = 2
	maxConvertWorkers = 4

	// cacheSize bounds the session conversion cache. Keys are source
	// path+stat+preset, values are produced PDF paths.
	cacheSize = 64
)

// Status is a conversion job's lifecycle state. Every job handed to
// ConvertBatch comes back either succeeded or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job tracks one document through conversion.
type Job struct {
	SourcePath   string
	SourceFormat string // lowercased extension, no dot
	TargetFormat string
	Preset       preset.Preset

	Status      Status
	OutputPath  string
	ErrorDetail string
	Err         error
}

// NewJob builds a pending job, deriving the source format from the file
// extension.
func NewJob(sourcePath, targetFormat string, p preset.Preset) Job {
	return Job{
		SourcePath:   sourcePath,
		SourceFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(sourcePath)), "."),
		TargetFormat: targetFormat,
		Preset:       p,
		Status:       StatusPending,
	}
}

// NeedsConversion reports whether the job's source format differs from its
// target.
func (j *Job) NeedsConversion() bool {
	return j.SourceFormat != j.TargetFormat
}

// Scheduler fans a batch of jobs over a bounded worker pool.
type Scheduler struct {
	converter Converter
	workers   int
	cache     *lru.Cache[string, string]
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers pins the worker count instead of deriving it from the host.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) { s.workers = n }
}

// NewScheduler builds a scheduler around a converter.
func NewScheduler(c Converter, opts ...SchedulerOption) *Scheduler {
	cache, _ := lru.New[string, string](cacheSize)
	s := &Scheduler{
		converter: c,
		cache:     cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertBatch runs every job to a terminal state and returns results in
// input order. Jobs already in their target format succeed untouched; a
// failing job never disturbs its siblings. Canceling the context lets
// running conversions finish but fails everything still queued.
func (s *Scheduler) ConvertBatch(ctx context.Context, jobs []Job) []Job {
	results := make([]Job, len(jobs))
	work := make([]int, 0, len(jobs))

	for i, job := range jobs {
		job.Status = StatusPending
		switch {
		case !job.NeedsConversion():
			job.Status = StatusSucceeded
			job.OutputPath = job.SourcePath
		case job.SourceFormat != "epub":
			job.Status = StatusFailed
			job.ErrorDetail = fmt.Sprintf("cannot convert %s to %s", displayFormat(job.SourceFormat), job.TargetFormat)
		default:
			work = append(work, i)
		}
		results[i] = job
	}

	if len(work) == 0 {
		return results
	}

	workers := s.workerCount(len(work))
	slog.Info("converting documents", "jobs", len(work), "workers", workers)

	var wg sync.WaitGroup
	jobChan := make(chan int, len(work))

	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case i, ok := <-jobChan:
					if !ok {
						return
					}
					if ctx.Err() != nil {
						return
					}
					// distinct indexes per worker, no lock needed
					results[i] = s.runJob(ctx, results[i])
				}
			}
		}()
	}

	for _, i := range work {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()

	// whatever never left pending was abandoned by cancellation
	for _, i := range work {
		if results[i].Status == StatusPending {
			results[i].Status = StatusFailed
			results[i].ErrorDetail = "canceled before conversion started"
			results[i].Err = ctx.Err()
		}
	}

	return results
}

func (s *Scheduler) runJob(ctx context.Context, job Job) Job {
	job.Status = StatusRunning

	key := s.cacheKey(&job)
	if key != "" {
		if out, ok := s.cache.Get(key); ok && utils.FileExists(out) {
			slog.Debug("conversion cache hit", "source", filepath.Base(job.SourcePath))
			job.Status = StatusSucceeded
			job.OutputPath = out
			return job
		}
	}

	// In-flight conversions run to completion even when the batch is
	// canceled; only queued jobs are abandoned. The converter still
	// enforces its own timeout.
	out, err := s.converter.Convert(context.WithoutCancel(ctx), job.SourcePath, job.Preset)
	if err != nil {
		job.Status = StatusFailed
		job.Err = err
		var cerr *Error
		if errors.As(err, &cerr) {
			job.ErrorDetail = cerr.Detail
		} else {
			job.ErrorDetail = err.Error()
		}
		return job
	}

	job.Status = StatusSucceeded
	job.OutputPath = out
	if key != "" {
		s.cache.Add(key, out)
	}
	return job
}

// cacheKey identifies a conversion by source file identity and the full
// preset; any change to either forces a fresh conversion.
func (s *Scheduler) cacheKey(job *Job) string {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return ""
	}
	p := job.Preset
	return fmt.Sprintf("%s|%d|%d|%s|%s|%d|%d|%s|%t",
		job.SourcePath, info.Size(), info.ModTime().UnixNano(),
		job.TargetFormat, p.CustomSize(), p.MarginPt, p.FontSizePt, p.FontFamily, p.EmbedAllFonts)
}

// DefaultWorkers is the conversion pool size used when no override is
// configured: the host's CPU count clamped to [2, 4].
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n < minConvertWorkers {
		n = minConvertWorkers
	}
	if n > maxConvertWorkers {
		n = maxConvertWorkers
	}
	return n
}

// workerCount follows the host: at least two workers, at most four, never
// more than there are jobs.
func (s *Scheduler) workerCount(jobs int) int {
	n := s.workers
	if n <= 0 {
		n = DefaultWorkers()
	}
	if n > jobs {
		n = jobs
	}
	return n
}

func displayFormat(format string) string {
	if format == "" {
		return "unknown format"
	}
	return format
}
