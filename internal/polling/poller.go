package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genflow/internal/remote"
	"github.com/phrazzld/genflow/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by Start on a running Poller.
var ErrAlreadyStarted = errors.New("poller already started")

// Poller runs the scheduler loop over its Registry.
type Poller struct {
	registry *Registry
	handler  *Handler
	jobs     store.JobStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller wires a Poller with its own Registry and Handler.
func NewPoller(
	client remote.Client,
	jobs store.JobStore,
	finalizer Finalizer,
	cfg Config,
	logger *slog.Logger,
) *Poller {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "poller"))
	registry := NewRegistry(cfg.InitialDelay)

	return &Poller{
		registry: registry,
		handler:  NewHandler(client, jobs, finalizer, registry, cfg, logger),
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Register starts tracking taskID. It reports false when the task is
// already tracked.
func (p *Poller) Register(taskID string) bool {
	added := p.registry.Register(taskID, p.now())
	if added {
		p.logger.Debug("task registered",
			slog.String("task_id", taskID),
			slog.Duration("next_poll_in", p.cfg.InitialDelay))
	}
	return added
}

// Tracked returns the schedule of taskID, if it is tracked.
func (p *Poller) Tracked(taskID string) (TrackedTask, bool) {
	return p.registry.Get(taskID)
}

// Len returns the number of tracked tasks.
func (p *Poller) Len() int {
	return p.registry.Len()
}

// Start recovers unfinished jobs and launches the loop. The loop runs until
// Stop is called or ctx is cancelled; either way the registry is cleared and
// the Poller can be started again.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	if _, err := p.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, p.done)

	p.logger.Info("poller started",
		slog.Duration("tick_interval", p.cfg.TickInterval),
		slog.Int("max_concurrent_polls", p.cfg.MaxConcurrentPolls))
	return nil
}

// Stop ends the loop, waits for the polls of the current tick to finish and
// clears the registry. Stopping a Poller that is not running is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.registry.Clear()
	p.logger.Info("poller stopped")
}

// Recover registers every job that has not reached a terminal status.
// It returns the number of tasks newly registered.
func (p *Poller) Recover(ctx context.Context) (int, error) {
	jobs, err := p.jobs.LoadNonTerminal(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, job := range jobs {
		if job.IsTerminal() || job.IsFinalized() {
			continue
		}
		if p.registry.Register(job.TaskID, p.now()) {
			registered++
		}
	}

	p.logger.Info("recovered unfinished jobs",
		slog.Int("loaded", len(jobs)),
		slog.Int("registered", registered))
	return registered, nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(done)
			p.release(done)
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// release resets the lifecycle after the loop ends. When Stop ended it,
// Stop has already done so; otherwise the parent context was cancelled and
// the Poller returns to its unstarted state with an empty registry.
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != done {
		return
	}
	p.cancel()
	p.cancel = nil
	p.done = nil

	p.registry.Clear()
	p.logger.Info("poller stopped", slog.String("reason", "context cancelled"))
}

// tick polls every due task, at most MaxConcurrentPolls at a time, and
// returns once all of them are done. In-flight polls are not cancelled by
// ctx; ctx only stops new polls from being started.
func (p *Poller) tick(ctx context.Context) int {
	pollCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrentPolls)

	started := 0
	for t := range p.registry.Due(p.now()) {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			c, cancel := context.WithTimeout(pollCtx, p.cfg.PollTimeout)
			defer cancel()
			p.handler.Poll(c, t)
			return nil
		})
	}
	_ = g.Wait()

	if started > 0 {
		p.logger.Debug("tick complete",
			slog.Int("polled", started),
			slog.Int("tracked", p.registry.Len()))
	}
	return started
}
