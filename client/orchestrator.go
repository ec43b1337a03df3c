package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"translator-api-scalable/api"
)

// State is the client-observed stage of one submission.
type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StatePolling   State = "polling"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the submission has ended.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

func (s State) active() bool {
	return s == StateUploading || s == StatePolling
}

// JobService is the part of the gateway the orchestrator drives.
// *Client implements it.
type JobService interface {
	Upload(ctx context.Context, req UploadRequest, onProgress func(percent int)) (JobHandle, error)
	Status(ctx context.Context, jobID string) (api.StatusResponse, error)
	DownloadURL(jobID string) string
}

// Update is what a presentation layer renders after every change.
type Update struct {
	State          State
	JobID          string
	UploadProgress int
	Phase          api.Phase
	Progress       int
	Message        string
	DownloadURL    string
	Err            error
}

// Result describes a finished job.
type Result struct {
	JobID       string
	DownloadURL string
	Snapshot    api.StatusResponse
}

// Orchestrator runs submissions one at a time: upload, then poll the job
// until it reaches a terminal phase.
type Orchestrator struct {
	svc      JobService
	policy   PollPolicy
	onUpdate func(Update)
	logger   log.Logger

	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	mu        sync.Mutex
	view      Update
	cancel    context.CancelFunc
	cancelled bool
}

// NewOrchestrator creates an idle orchestrator. onUpdate and logger may be nil.
func NewOrchestrator(svc JobService, policy PollPolicy, onUpdate func(Update), logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Orchestrator{
		svc:      svc,
		policy:   policy.normalized(),
		onUpdate: onUpdate,
		logger:   logger,
		after:    time.After,
		now:      time.Now,
		view:     Update{State: StateIdle},
	}
}

// State returns the current stage.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view.State
}

// Last returns the most recent update.
func (o *Orchestrator) Last() Update {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// Cancel stops the active submission. It is safe to call at any time and
// any number of times; the server-side job is not aborted.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil || !o.view.State.active() {
		return
	}
	o.cancelled = true
	o.cancel()
}

// Submit uploads the document and blocks until its job is done, has
// failed, was cancelled or exhausted the poll policy.
func (o *Orchestrator) Submit(ctx context.Context, req UploadRequest) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.begin(cancel); err != nil {
		return Result{}, err
	}

	handle, err := o.svc.Upload(ctx, req, o.uploadProgress)
	if err != nil {
		return Result{}, o.fail(ctx, "", err)
	}
	level.Info(o.logger).Log("msg", "upload accepted", "job_id", handle.JobID, "file", req.FileName)

	err = o.update(StatePolling, func(u *Update) {
		u.JobID = handle.JobID
		u.UploadProgress = 100
		u.Phase = api.PhaseQueued
		u.Message = "Uploaded. Waiting for the server..."
	})
	if err != nil {
		return Result{}, err
	}

	snap, err := o.poll(ctx, handle.JobID)
	if err != nil {
		return Result{}, o.fail(ctx, handle.JobID, err)
	}

	downloadURL := o.svc.DownloadURL(handle.JobID)
	err = o.update(StateDone, func(u *Update) {
		u.Phase = snap.Phase
		u.Progress = clampProgress(snap.Progress)
		u.DownloadURL = downloadURL
		u.Message = "Done! Download: " + downloadURL
	})
	if err != nil {
		return Result{}, err
	}
	level.Info(o.logger).Log("msg", "job done", "job_id", handle.JobID, "download", downloadURL)

	return Result{JobID: handle.JobID, DownloadURL: downloadURL, Snapshot: snap}, nil
}

// poll queries the job until a terminal snapshot arrives. Queries never
// overlap: the wait starts after the previous answer was handled.
func (o *Orchestrator) poll(ctx context.Context, jobID string) (api.StatusResponse, error) {
	start := o.now()
	interval := o.policy.Interval

	for attempt := 1; ; attempt++ {
		snap, err := o.svc.Status(ctx, jobID)
		if err != nil {
			return api.StatusResponse{}, err
		}
		level.Debug(o.logger).Log("msg", "status", "job_id", jobID, "attempt", attempt,
			"phase", snap.Phase, "progress", snap.Progress, "done", snap.Done)

		if snap.Phase == api.PhaseError {
			msg := strings.TrimSpace(snap.Error)
			if msg == "" {
				msg = "translation failed"
			}
			return snap, &JobError{JobID: jobID, Message: msg}
		}
		if snap.Done || snap.Phase == api.PhaseDone {
			return snap, nil
		}

		err = o.update(StatePolling, func(u *Update) {
			u.Phase = snap.Phase
			u.Progress = clampProgress(snap.Progress)
			u.Message = phaseMessage(snap.Phase, u.Progress)
		})
		if err != nil {
			return snap, err
		}

		if o.policy.MaxAttempts > 0 && attempt >= o.policy.MaxAttempts {
			return snap, fmt.Errorf("%w: gave up after %d status queries", ErrPollLimit, attempt)
		}
		if o.policy.MaxDuration > 0 && o.now().Sub(start)+interval > o.policy.MaxDuration {
			return snap, fmt.Errorf("%w: gave up after %s", ErrPollLimit, o.policy.MaxDuration)
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-o.after(interval):
		}
		interval = o.policy.next(interval)
	}
}

func (o *Orchestrator) begin(cancel context.CancelFunc) error {
	o.mu.Lock()
	if o.view.State.active() {
		o.mu.Unlock()
		return ErrSubmissionInProgress
	}
	o.cancel = cancel
	o.cancelled = false
	o.view = Update{
		State:   StateUploading,
		Message: fmt.Sprintf("Uploading (max %d MB)...", MaxUploadSize>>20),
	}
	view := o.view
	o.mu.Unlock()

	o.notify(view)
	return nil
}

// uploadProgress runs on the transport goroutine.
func (o *Orchestrator) uploadProgress(percent int) {
	o.mu.Lock()
	if o.view.State != StateUploading || percent <= o.view.UploadProgress {
		o.mu.Unlock()
		return
	}
	o.view.UploadProgress = percent
	o.view.Message = fmt.Sprintf("Uploading... %d%%", percent)
	view := o.view
	o.mu.Unlock()

	o.notify(view)
}

func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) error {
	o.mu.Lock()
	cancelled := o.cancelled
	o.mu.Unlock()

	if cancelled || errors.Is(ctx.Err(), context.Canceled) {
		level.Info(o.logger).Log("msg", "submission cancelled", "job_id", jobID)
		if err := o.update(StateCancelled, func(u *Update) {
			u.Err = ErrCancelled
			u.Message = "Cancelled."
		}); err != nil {
			return errors.Join(ErrCancelled, err)
		}
		return ErrCancelled
	}

	level.Error(o.logger).Log("msg", "submission failed", "job_id", jobID, "err", cause)
	err := o.update(StateFailed, func(u *Update) {
		var jobErr *JobError
		if errors.As(cause, &jobErr) {
			u.Phase = api.PhaseError
		}
		u.Err = cause
		u.Message = "Error: " + cause.Error()
	})
	if err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// update applies one validated transition and notifies the hook.
func (o *Orchestrator) update(to State, mutate func(*Update)) error {
	o.mu.Lock()
	from := o.view.State
	if !isValidTransition(from, to) {
		o.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	mutate(&o.view)
	o.view.State = to
	view := o.view
	o.mu.Unlock()

	o.notify(view)
	return nil
}

func (o *Orchestrator) notify(u Update) {
	if o.onUpdate != nil {
		o.onUpdate(u)
	}
}

// isValidTransition enforces the submission state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateUploading
	case StateUploading:
		return to == StatePolling || to == StateFailed || to == StateCancelled
	case StatePolling:
		return to == StatePolling || to == StateDone || to == StateFailed || to == StateCancelled
	case StateDone, StateFailed, StateCancelled:
		return to == StateUploading
	default:
		return false
	}
}

func phaseMessage(phase api.Phase, progress int) string {
	switch phase {
	case api.PhaseQueued:
		return "Queued, waiting for a worker..."
	case api.PhaseUploading:
		return "Server is receiving the file..."
	case api.PhaseProcessing:
		return fmt.Sprintf("Translating... %d%%", progress)
	default:
		return fmt.Sprintf("%s... %d%%", phase, progress)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
