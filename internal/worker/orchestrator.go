package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ah-its-andy/convertbot/internal/converter"
	"github.com/ah-its-andy/convertbot/internal/db"
	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
	"github.com/ah-its-andy/convertbot/internal/limits"
	"github.com/ah-its-andy/convertbot/internal/progress"
	"github.com/ah-its-andy/convertbot/internal/session"
	"github.com/ah-its-andy/convertbot/internal/utils"
)

const (
	DefaultFetchTimeout    = 30 * time.Second
	DefaultListenerTimeout = 5 * time.Second
)

var (
	// ErrAllFailed is returned by Run when no file of the job converted.
	ErrAllFailed = errors.New("no file could be converted")
	// ErrCancelled is returned by Run when the job was removed while running.
	ErrCancelled = errors.New("job cancelled")
	// ErrConsentRequired is returned by SelectKind before the user accepted
	// the terms.
	ErrConsentRequired = &domain.Error{Kind: domain.Validation, Op: "select", Message: "terms must be accepted first"}
)

// BlobSource returns the bytes behind a PendingFile handle.
type BlobSource interface {
	Fetch(ctx context.Context, handle string) ([]byte, error)
	Release(handle string) error
}

// Locator resolves the ffmpeg executable.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// History stores one row per converted file.
type History interface {
	InsertTaskHistory(task *db.TaskHistory) error
}

// Uploader copies a converted file to cloud storage.
type Uploader interface {
	Upload(ctx context.Context, user, jobID string, file domain.ConvertedFile) (string, error)
}

// Deps wires an Orchestrator. Locator, History and Uploader are optional.
type Deps struct {
	Store      *session.Store
	Dispatcher *converter.Dispatcher
	Blobs      BlobSource
	Queue      *Queue
	Listener   Listener
	Locator    Locator
	History    History
	Uploader   Uploader

	FetchTimeout    time.Duration
	ListenerTimeout time.Duration
	MD5ChunkSize    int
}

// FileFailure describes one file that did not convert.
type FileFailure struct {
	Index int
	Name  string
	Err   error
}

// Summary is the outcome of one Run.
type Summary struct {
	JobID     string
	Kind      domain.Kind
	Total     int
	Succeeded int
	Failures  []FileFailure
	Duration  time.Duration
}

// Orchestrator owns the lifecycle of conversion jobs: the front end calls
// SelectKind, Enqueue, Trigger and Cancel; the pool calls Run.
type Orchestrator struct {
	store      *session.Store
	dispatcher *converter.Dispatcher
	blobs      BlobSource
	queue      *Queue
	listener   Listener
	sink       *progress.Sink
	locator    Locator
	history    History
	uploader   Uploader

	fetchTimeout    time.Duration
	listenerTimeout time.Duration
	md5ChunkSize    int
}

func NewOrchestrator(d Deps) *Orchestrator {
	o := &Orchestrator{
		store:           d.Store,
		dispatcher:      d.Dispatcher,
		blobs:           d.Blobs,
		queue:           d.Queue,
		listener:        d.Listener,
		locator:         d.Locator,
		history:         d.History,
		uploader:        d.Uploader,
		fetchTimeout:    d.FetchTimeout,
		listenerTimeout: d.ListenerTimeout,
		md5ChunkSize:    d.MD5ChunkSize,
	}
	if o.listener == nil {
		o.listener = NopListener{}
	}
	if o.fetchTimeout <= 0 {
		o.fetchTimeout = DefaultFetchTimeout
	}
	if o.listenerTimeout <= 0 {
		o.listenerTimeout = DefaultListenerTimeout
	}
	o.sink = progress.NewSink(o.store, o.listener).WithTimeout(o.listenerTimeout)
	return o
}

// SelectKind starts a new job of the named kind for user, replacing any
// previous job.
func (o *Orchestrator) SelectKind(user, kindName string) (domain.Job, error) {
	if !o.store.Consented(user) {
		return domain.Job{}, ErrConsentRequired
	}
	spec, ok := domain.Lookup(kindName)
	if !ok {
		return domain.Job{}, domain.Errorf(domain.Validation, "select", "unknown conversion kind %q", kindName)
	}
	job, old := o.store.CreateOrReplace(user, spec)
	// A converting job releases its own files when Run returns.
	if old != nil && old.State == domain.StateCollecting {
		o.release(old.Files)
	}
	log.Printf("[Orchestrator] %s selected %s (job %s)", user, spec.Kind, job.ID)
	return job, nil
}

// Enqueue adds an uploaded file to user's job. Rejected files are released
// and reported through OnFileRejected.
func (o *Orchestrator) Enqueue(ctx context.Context, user string, file domain.PendingFile) (domain.PendingFile, error) {
	job, ok := o.store.Get(user)
	if !ok {
		return o.reject(ctx, user, file, session.ErrNoJob)
	}
	if err := limits.Precheck(file.Name, file.Size, file.Duration, &job); err != nil {
		return o.reject(ctx, user, file, err)
	}
	added, err := o.store.Enqueue(user, file)
	if err != nil {
		return o.reject(ctx, user, file, err)
	}
	o.notify(ctx, "file accepted", func(ctx context.Context) error {
		return o.listener.OnFileAccepted(ctx, user, added, added.Index+1, job.FileLimit)
	})
	return added, nil
}

func (o *Orchestrator) reject(ctx context.Context, user string, file domain.PendingFile, err error) (domain.PendingFile, error) {
	o.release([]domain.PendingFile{file})
	o.notify(ctx, "file rejected", func(ctx context.Context) error {
		return o.listener.OnFileRejected(ctx, user, file.Name, err)
	})
	return domain.PendingFile{}, err
}

// Trigger queues user's job for conversion.
func (o *Orchestrator) Trigger(user string) error {
	job, ok := o.store.Get(user)
	if !ok {
		return session.ErrNoJob
	}
	if job.State != domain.StateCollecting {
		return session.ErrNotCollecting
	}
	if len(job.Files) == 0 {
		return session.ErrEmptyJob
	}
	return o.queue.Enqueue(user)
}

// Cancel removes user's job. A running conversion is interrupted and its
// results are discarded.
func (o *Orchestrator) Cancel(user string) bool {
	job, ok := o.store.Remove(user)
	if !ok {
		return false
	}
	if job.State == domain.StateCollecting {
		o.release(job.Files)
	}
	log.Printf("[Orchestrator] %s cancelled job %s", user, job.ID)
	return true
}

// Status returns a copy of user's job and its progress.
func (o *Orchestrator) Status(user string) (domain.Job, domain.Progress, bool) {
	job, ok := o.store.Get(user)
	if !ok {
		return domain.Job{}, domain.Progress{}, false
	}
	p, _ := o.store.Progress(user)
	return job, p, true
}

type outcome struct {
	file    domain.PendingFile
	result  *domain.ConvertedFile
	err     error
	md5     string
	size    int64
	elapsed time.Duration
}

// Run converts every file of user's job in enqueue order. A file that
// fails is reported and skipped. The job and its progress are removed and
// its blobs released however Run ends.
func (o *Orchestrator) Run(ctx context.Context, user string) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	job, err := o.store.Begin(user, cancel)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		o.store.RemoveIf(user, job.ID)
		o.release(job.Files)
	}()

	start := time.Now()
	total := len(job.Files)
	summary := Summary{JobID: job.ID, Kind: job.Kind.Kind, Total: total}
	log.Printf("[Orchestrator] job %s for %s: %d file(s) %s", job.ID, user, total, job.Kind.Kind)

	if job.Kind.NeedsTranscoder() && o.locator != nil {
		if _, err := o.locator.Locate(ctx); err != nil {
			if domain.KindOf(err) != domain.NotFound {
				err = domain.Wrap(domain.NotFound, "locate", err)
			}
			log.Printf("[Orchestrator] job %s: %v", job.ID, err)
			for i, f := range job.Files {
				summary.Failures = append(summary.Failures, FileFailure{Index: i, Name: f.Name, Err: err})
			}
			o.notify(ctx, "file failed", func(ctx context.Context) error {
				return o.listener.OnFileFailed(ctx, user, "", err)
			})
			o.notify(ctx, "batch complete", func(ctx context.Context) error {
				return o.listener.OnBatchComplete(ctx, user, 0, total)
			})
			summary.Duration = time.Since(start)
			return summary, err
		}
	}

	outcomes := make([]outcome, 0, total)
	for i, f := range job.Files {
		if ctx.Err() != nil {
			break
		}
		oc := o.convertOne(ctx, user, &job, f, i+1, total)
		if oc.err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("[Orchestrator] job %s file %d (%s): %v", job.ID, i+1, f.Name, oc.err)
			summary.Failures = append(summary.Failures, FileFailure{Index: i, Name: f.Name, Err: oc.err})
			o.notify(ctx, "file failed", func(ctx context.Context) error {
				return o.listener.OnFileFailed(ctx, user, f.Name, oc.err)
			})
		}
		outcomes = append(outcomes, oc)
	}

	if ctx.Err() != nil {
		summary.Duration = time.Since(start)
		log.Printf("[Orchestrator] job %s for %s cancelled, partial results discarded", job.ID, user)
		return summary, ErrCancelled
	}
	o.store.Finish(user, job.ID)

	for i := range outcomes {
		oc := &outcomes[i]
		cloudURL := ""
		if oc.result != nil {
			summary.Succeeded++
			cloudURL = o.upload(ctx, user, job.ID, *oc.result)
			res := *oc.result
			o.notify(ctx, "result", func(ctx context.Context) error {
				return o.listener.OnResult(ctx, user, res)
			})
		}
		o.record(user, &job, oc, cloudURL)
	}

	o.notify(ctx, "batch complete", func(ctx context.Context) error {
		return o.listener.OnBatchComplete(ctx, user, summary.Succeeded, total)
	})
	summary.Duration = time.Since(start)
	if summary.Succeeded == 0 {
		return summary, ErrAllFailed
	}
	return summary, nil
}

func (o *Orchestrator) convertOne(ctx context.Context, user string, job *domain.Job, f domain.PendingFile, index, total int) outcome {
	start := time.Now()
	oc := outcome{file: f}

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	data, err := o.blobs.Fetch(fetchCtx, f.Handle)
	cancel()
	if err != nil {
		oc.err = err
		oc.elapsed = time.Since(start)
		return oc
	}
	oc.size = int64(len(data))
	oc.md5 = utils.MD5Bytes(data, o.md5ChunkSize)

	detected := format.Detect(data, f.Name)
	if err := limits.Validate(oc.size, detected, data, job); err != nil {
		oc.err = err
		oc.elapsed = time.Since(start)
		return oc
	}

	report := o.sink.For(ctx, user, index, total)
	report(0)
	out, err := o.dispatcher.Convert(ctx, job, f, data, detected, report)
	if err != nil {
		oc.err = err
		oc.elapsed = time.Since(start)
		return oc
	}
	report(100)
	oc.result = &out
	oc.elapsed = time.Since(start)
	return oc
}

func (o *Orchestrator) upload(ctx context.Context, user, jobID string, file domain.ConvertedFile) string {
	if o.uploader == nil || !o.store.CloudEnabled(user) {
		return ""
	}
	url, err := o.uploader.Upload(ctx, user, jobID, file)
	if err != nil {
		log.Printf("[Orchestrator] cloud copy of %s for %s failed: %v", file.Name, user, err)
		return ""
	}
	return url
}

func (o *Orchestrator) record(user string, job *domain.Job, oc *outcome, cloudURL string) {
	if o.history == nil {
		return
	}
	row := &db.TaskHistory{
		JobID:      job.ID,
		UserID:     user,
		Kind:       string(job.Kind.Kind),
		FileName:   oc.file.Name,
		FileIndex:  oc.file.Index,
		SourceMD5:  oc.md5,
		SourceSize: oc.size,
		Status:     db.StatusSuccess,
		CloudURL:   cloudURL,
		DurationMs: oc.elapsed.Milliseconds(),
	}
	if oc.result != nil {
		row.OutputName = oc.result.Name
		row.OutputSize = int64(len(oc.result.Data))
	} else {
		row.Status = db.StatusFailed
		row.ErrorKind = string(domain.KindOf(oc.err))
		row.ErrorMessage = oc.err.Error()
	}
	if err := o.history.InsertTaskHistory(row); err != nil {
		log.Printf("[Orchestrator] insert task history failed: %v", err)
	}
}

// notify calls the listener under its own timeout. The call survives
// cancellation of ctx, and panics are recovered.
func (o *Orchestrator) notify(ctx context.Context, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.listenerTimeout)
	defer cancel()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		log.Printf("[Orchestrator] %s: %v", what, err)
	}
}

func (o *Orchestrator) release(files []domain.PendingFile) {
	if o.blobs == nil {
		return
	}
	for _, f := range files {
		if f.Handle == "" {
			continue
		}
		if err := o.blobs.Release(f.Handle); err != nil {
			log.Printf("[Orchestrator] release %s: %v", f.Handle, err)
		}
	}
}
