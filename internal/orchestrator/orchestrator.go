// Package orchestrator owns the lifecycle of generation jobs: freezing
// snapshots into backend requests, tracking exactly one in-flight job, and
// advancing the queue of pending snapshots on terminal transitions.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genbridge/internal/capture"
	"genbridge/internal/gen"
	"genbridge/internal/history"
	"genbridge/pkg/types"
)

// Backend is the remote job surface the orchestrator drives. Satisfied by
// *client.Client and by test fakes.
type Backend interface {
	Generate(ctx context.Context, req *types.GenerateRequest) (string, error)
	Upscale(ctx context.Context, req *types.UpscaleRequest) (string, error)
	Custom(ctx context.Context, workflow map[string]any) (string, error)
	JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error)
	JobImages(ctx context.Context, jobID string) (*types.JobImagesResponse, error)
	CancelJob(ctx context.Context, jobID string) error
	Styles(ctx context.Context) ([]types.StyleSummary, error)
}

// Settings are the persisted user settings read once at submit time and
// passed in as values, keeping the state machine free of global lookups.
type Settings struct {
	PollInterval         time.Duration
	ResolutionMultiplier float64
}

// Options configures a new Orchestrator.
type Options struct {
	Backend  Backend
	Editor   capture.Editor
	History  *history.Recorder
	Reporter Reporter
	Settings Settings
	Logger   zerolog.Logger
}

// Orchestrator runs at most one job at a time. The active job id is a
// single-writer register: only the run loop sets and clears it; cancel
// actions read it to know what to cancel.
type Orchestrator struct {
	backend  Backend
	editor   capture.Editor
	history  *history.Recorder
	reporter Reporter
	settings Settings
	log      zerolog.Logger

	queue Queue

	mu          sync.Mutex
	active      bool
	activeJobID string
	activeToken *CancelToken
	styles      map[string]types.StyleSummary
}

// New creates an orchestrator, filling unspecified options with defaults.
func New(opts Options) *Orchestrator {
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.Settings.PollInterval <= 0 {
		opts.Settings.PollInterval = 500 * time.Millisecond
	}
	if opts.Settings.ResolutionMultiplier <= 0 {
		opts.Settings.ResolutionMultiplier = 1.0
	}
	return &Orchestrator{
		backend:  opts.Backend,
		editor:   opts.Editor,
		history:  opts.History,
		reporter: opts.Reporter,
		settings: opts.Settings,
		log:      opts.Logger,
		styles:   map[string]types.StyleSummary{},
	}
}

// RefreshStyles reloads the style list from the backend.
func (o *Orchestrator) RefreshStyles(ctx context.Context) error {
	styles, err := o.backend.Styles(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.styles = make(map[string]types.StyleSummary, len(styles))
	for _, s := range styles {
		o.styles[s.ID] = s
	}
	return nil
}

// StyleByID returns a previously fetched style, or nil.
func (o *Orchestrator) StyleByID(id string) *types.StyleSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.styles[id]; ok {
		return &s
	}
	return nil
}

// Active returns the in-flight job id, if any.
func (o *Orchestrator) Active() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeJobID, o.active
}

// Generate runs the snapshot immediately. Refused with a job-active error
// when a job is in flight; the caller queues or cancels instead. On terminal
// transitions the queue keeps advancing: finished and interrupted jobs pull
// the next snapshot, an erroring job halts the chain so the user can inspect
// it before burning through queued work.
func (o *Orchestrator) Generate(ctx context.Context, snap *gen.Snapshot) error {
	if err := o.acquire(); err != nil {
		return err
	}
	return o.runChain(ctx, snap)
}

// Submit is the UI entry point: run immediately when idle, otherwise store
// the snapshot at the back of the queue. Returns true when queued. The push
// happens under the orchestrator lock, the same lock the running chain takes
// for its terminal handoff, so a snapshot queued against a finishing job is
// always drained by that chain rather than stranded.
func (o *Orchestrator) Submit(ctx context.Context, snap *gen.Snapshot) (bool, error) {
	o.mu.Lock()
	if o.active {
		o.queue.PushBack(snap)
		o.mu.Unlock()
		return true, nil
	}
	o.active = true
	o.mu.Unlock()
	return false, o.runChain(ctx, snap)
}

// Upscale runs an upscale job through the same submit/poll/fetch lifecycle,
// then advances the queue like any other terminal transition.
func (o *Orchestrator) Upscale(ctx context.Context, req *types.UpscaleRequest) error {
	if err := o.acquire(); err != nil {
		return err
	}
	return o.runChainWith(ctx, func(ctx context.Context, tok *CancelToken) error {
		jobID, err := o.backend.Upscale(ctx, req)
		if err != nil {
			return err
		}
		o.setActiveJob(jobID)
		return o.track(ctx, jobID, tok, func(images *types.JobImagesResponse) error {
			applied := o.place(ctx, jobID, images)
			return o.record(req.Prompt, req.NegativePrompt, 100, "", images, applied)
		})
	})
}

// RunCustom submits an ad-hoc workflow graph (local backend only) with the
// standard lifecycle.
func (o *Orchestrator) RunCustom(ctx context.Context, workflow map[string]any) error {
	if err := o.acquire(); err != nil {
		return err
	}
	return o.runChainWith(ctx, func(ctx context.Context, tok *CancelToken) error {
		jobID, err := o.backend.Custom(ctx, workflow)
		if err != nil {
			return err
		}
		o.setActiveJob(jobID)
		return o.track(ctx, jobID, tok, func(images *types.JobImagesResponse) error {
			applied := o.place(ctx, jobID, images)
			return o.record("", "", 100, "", images, applied)
		})
	})
}

// Enqueue appends a snapshot behind the queue.
func (o *Orchestrator) Enqueue(snap *gen.Snapshot) Item { return o.queue.PushBack(snap) }

// EnqueueFront inserts a snapshot ahead of all pending items.
func (o *Orchestrator) EnqueueFront(snap *gen.Snapshot) Item { return o.queue.PushFront(snap) }

// ReplaceQueue clears the queue and inserts the snapshot.
func (o *Orchestrator) ReplaceQueue(snap *gen.Snapshot) Item { return o.queue.ReplaceAll(snap) }

// RemoveQueued drops one pending item by id.
func (o *Orchestrator) RemoveQueued(id string) bool { return o.queue.Remove(id) }

// ClearQueue drops all pending items without touching the active job.
func (o *Orchestrator) ClearQueue() { o.queue.Clear() }

// QueuedItems lists pending items in run order.
func (o *Orchestrator) QueuedItems() []Item { return o.queue.Items() }

// QueueLen returns the number of pending items.
func (o *Orchestrator) QueueLen() int { return o.queue.Len() }

// CancelActive sets the active job's cooperative cancel flag and issues a
// best-effort remote cancel. Local cleanup proceeds regardless of the remote
// call's outcome; the queue still advances afterwards.
func (o *Orchestrator) CancelActive(ctx context.Context) {
	o.mu.Lock()
	tok := o.activeToken
	jobID := o.activeJobID
	o.mu.Unlock()
	if tok == nil {
		return
	}
	tok.Cancel()
	if jobID == "" {
		return
	}
	if err := o.backend.CancelJob(ctx, jobID); err != nil {
		o.log.Warn().Str("job_id", jobID).Err(err).Msg("remote cancel failed")
	}
}

// CancelAll clears the queue and cancels the active job, stopping everything.
func (o *Orchestrator) CancelAll(ctx context.Context) {
	o.queue.Clear()
	o.CancelActive(ctx)
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return jobActiveError{}
	}
	o.active = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.active = false
	o.activeJobID = ""
	o.activeToken = nil
	o.mu.Unlock()
}

func (o *Orchestrator) setActiveJob(jobID string) {
	o.mu.Lock()
	o.activeJobID = jobID
	o.mu.Unlock()
}

func (o *Orchestrator) setToken(tok *CancelToken) {
	o.mu.Lock()
	o.activeToken = tok
	o.activeJobID = ""
	o.mu.Unlock()
}

// runChain runs the snapshot, then keeps pulling from the queue. An explicit
// loop rather than a terminal-handler recursion, so long queues cannot grow
// the call stack.
func (o *Orchestrator) runChain(ctx context.Context, snap *gen.Snapshot) error {
	return o.runChainWith(ctx, func(ctx context.Context, tok *CancelToken) error {
		return o.runSnapshot(ctx, snap, tok)
	})
}

func (o *Orchestrator) runChainWith(ctx context.Context, first func(context.Context, *CancelToken) error) error {
	run := first
	for {
		tok := NewCancelToken()
		o.setToken(tok)
		err := run(ctx, tok)
		if err != nil && !IsInterrupted(err) {
			// An erroring job halts the queue so the user can inspect and
			// decide; cancellation (interrupted) keeps advancing.
			o.log.Error().Err(err).Msg("job failed")
			o.reporter.Notify(err)
			o.release()
			return err
		}
		next := o.takeNextOrRelease()
		if next == nil {
			return nil
		}
		snap := next.Snapshot
		run = func(ctx context.Context, tok *CancelToken) error {
			return o.runSnapshot(ctx, snap, tok)
		}
	}
}

// takeNextOrRelease pops the next pending item or, when the queue is empty,
// clears the active state. Both happen under the orchestrator lock: a Submit
// racing the terminal transition either lands its snapshot where this
// TakeNext sees it, or finds the orchestrator already idle and runs directly.
func (o *Orchestrator) takeNextOrRelease() *Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := o.queue.TakeNext()
	if next == nil {
		o.active = false
		o.activeJobID = ""
		o.activeToken = nil
	}
	return next
}
