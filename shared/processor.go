package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"translator-api-scalable/api"
)

// Progress milestones of a job; batch progress is spread between them.
const (
	progressExtracted  = 5
	progressTranslated = 95
)

var errWorkerShutdown = errors.New("worker shutting down")

// ProcessorOptions tunes a Processor.
type ProcessorOptions struct {
	MaxWorkers    int
	BatchMaxChars int
	// PublicBaseURL prefixes download links; empty keeps them relative.
	PublicBaseURL string
}

// Processor consumes queued jobs and runs them through the translation pipeline.
type Processor struct {
	db         DatabaseClient
	mq         MessageQueueClient
	store      ObjectStore
	translator Translator
	logger     log.Logger
	opts       ProcessorOptions
	now        func() time.Time

	workerLimiter chan struct{} // Semaphore to limit concurrent processing tasks
	wg            sync.WaitGroup
}

func NewProcessor(db DatabaseClient, mq MessageQueueClient, store ObjectStore, translator Translator, logger log.Logger, opts ProcessorOptions) *Processor {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.BatchMaxChars <= 0 {
		opts.BatchMaxChars = DefaultBatchMaxChars
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Processor{
		db:            db,
		mq:            mq,
		store:         store,
		translator:    translator,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
		workerLimiter: make(chan struct{}, opts.MaxWorkers),
	}
}

// Active is the number of jobs being processed right now.
func (p *Processor) Active() int { return len(p.workerLimiter) }

// MaxWorkers is the concurrency limit.
func (p *Processor) MaxWorkers() int { return cap(p.workerLimiter) }

// Run consumes the queue until ctx ends, then waits for in-flight jobs.
func (p *Processor) Run(ctx context.Context) error {
	messages, err := p.mq.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start consuming from queue: %w", err)
	}
	level.Info(p.logger).Log("msg", "worker started consuming messages", "max_workers", p.MaxWorkers())
	defer p.wg.Wait()

	for {
		// A worker token is taken before a message is accepted, so nothing
		// is pulled off the queue while all workers are busy.
		select {
		case p.workerLimiter <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		var (
			msg JobMessage
			ok  bool
		)
		select {
		case msg, ok = <-messages:
		case <-ctx.Done():
			<-p.workerLimiter
			return nil
		}
		if !ok {
			<-p.workerLimiter
			break
		}
		if ctx.Err() != nil {
			<-p.workerLimiter
			p.release(msg)
			return nil
		}
		level.Debug(p.logger).Log("msg", "acquired worker token", "job_id", msg.JobID, "active", p.Active())

		p.wg.Add(1)
		go func(jobMessage JobMessage) {
			defer func() {
				<-p.workerLimiter
				p.wg.Done()
			}()
			if err := p.ProcessJob(ctx, jobMessage); err != nil {
				level.Error(p.logger).Log("msg", "job processing error", "job_id", jobMessage.JobID, "err", err)
			}
		}(msg)
	}
	level.Info(p.logger).Log("msg", "queue consumer stopped")
	return nil
}

// release hands back a message accepted during shutdown. The message is
// published again for another worker; when that fails the job is marked
// failed so no client waits on it forever.
func (p *Processor) release(msg JobMessage) {
	ctx := context.Background()
	logger := log.With(p.logger, "job_id", msg.JobID)
	err := p.mq.Publish(ctx, msg)
	if err == nil {
		level.Info(logger).Log("msg", "requeued job during shutdown")
		return
	}
	level.Warn(logger).Log("msg", "failed to requeue job during shutdown", "err", err)

	job, gerr := p.db.GetJob(ctx, msg.JobID)
	if gerr != nil {
		level.Error(logger).Log("msg", "cannot load job to mark it failed", "err", gerr)
		return
	}
	if job.Phase.Terminal() {
		return
	}
	job.MarkFailed(p.now(), errWorkerShutdown.Error())
	if uerr := p.db.UpdateJob(ctx, job); uerr != nil {
		level.Error(logger).Log("msg", "failed to mark job failed", "err", uerr)
	}
}

// ProcessJob translates one queued job. Job failures are recorded on the
// job itself; the returned error only reports store failures.
func (p *Processor) ProcessJob(ctx context.Context, msg JobMessage) error {
	logger := log.With(p.logger, "job_id", msg.JobID)

	job, err := p.db.GetJob(ctx, msg.JobID)
	if errors.Is(err, ErrJobNotFound) {
		level.Warn(logger).Log("msg", "skipping message for unknown job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Phase.Terminal() || job.Phase == api.PhaseProcessing {
		level.Warn(logger).Log("msg", "skipping duplicate delivery", "phase", job.Phase)
		return nil
	}

	job.MarkProcessing(p.now())
	job.Progress = 0
	if err := p.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	level.Info(logger).Log("msg", "processing job", "file", job.FileName, "target_lang", job.TargetLang)

	start := p.now()
	resultName, err := p.translate(ctx, job)
	if err != nil {
		return p.fail(ctx, logger, job, err)
	}

	job.MarkDone(p.now(), ResultKey(job.ID), resultName, p.opts.PublicBaseURL+api.DownloadPath(job.ID))
	if err := p.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	level.Info(logger).Log("msg", "job completed", "result", resultName, "took", p.now().Sub(start))
	return nil
}

func (p *Processor) translate(ctx context.Context, job *Job) (string, error) {
	data, err := p.readSource(ctx, job)
	if err != nil {
		return "", err
	}
	text, err := ExtractDocument(job.FileName, data)
	if err != nil {
		return "", err
	}
	p.advance(ctx, job, progressExtracted)

	batches := BatchBlocks(SplitParagraphs(text), p.opts.BatchMaxChars)
	translated := make([]string, 0, len(batches))
	for i, batch := range batches {
		out, err := p.translator.Translate(ctx, batch, job.TargetLang)
		if err != nil {
			return "", err
		}
		if len(out) != len(batch) {
			return "", fmt.Errorf("translation engine returned %d texts for %d inputs", len(out), len(batch))
		}
		translated = append(translated, out...)
		p.advance(ctx, job, progressExtracted+(progressTranslated-progressExtracted)*(i+1)/len(batches))
	}

	result, err := RenderDocument(job.FileName, translated)
	if err != nil {
		return "", fmt.Errorf("render result: %w", err)
	}
	if err := p.store.Put(ctx, ResultKey(job.ID), bytes.NewReader(result), int64(len(result))); err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	return OutputName(job.FileName, job.TargetLang), nil
}

func (p *Processor) readSource(ctx context.Context, job *Job) ([]byte, error) {
	key := job.SourceKey
	if key == "" {
		key = SourceKey(job.ID)
	}
	rc, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load source document: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// advance persists forward progress; a failed write is logged and the job goes on.
func (p *Processor) advance(ctx context.Context, job *Job, progress int) {
	before := job.Progress
	job.SetProgress(progress)
	if job.Progress == before {
		return
	}
	if err := p.db.UpdateJob(ctx, job); err != nil {
		level.Warn(p.logger).Log("msg", "failed to persist progress", "job_id", job.ID, "progress", job.Progress, "err", err)
	}
}

// fail records the failure on the job, even when ctx is already cancelled.
func (p *Processor) fail(ctx context.Context, logger log.Logger, job *Job, cause error) error {
	reason := cause.Error()
	if ctx.Err() != nil {
		reason = "translation interrupted"
	}
	job.MarkFailed(p.now(), reason)
	if err := p.db.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	level.Warn(logger).Log("msg", "job failed", "reason", reason)
	return nil
}
