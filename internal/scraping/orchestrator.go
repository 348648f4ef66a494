// Package scraping runs scrape jobs: it accepts submissions, executes each job in the
// background through session selection, browser capture, extraction and persistence, and
// answers status and results queries from the stored job state.
package scraping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/social-scraper/internal/browser"
	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/observability"
	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/sessions"
	"github.com/jonathan/social-scraper/internal/types"
)

// terminalUpdateTimeout bounds the final status writes, which run detached from the job context.
const terminalUpdateTimeout = 30 * time.Second

var errIllegalTransition = errors.New("illegal job transition")

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, job *types.ScrapeJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error)
	UpdateJob(ctx context.Context, job *types.ScrapeJob) error
	SaveResults(ctx context.Context, bundle *types.ScrapeBundle) (*types.SaveSummary, error)
	GetJobResults(ctx context.Context, jobID uuid.UUID) (*types.JobResults, error)
}

// SessionSelector picks the session a job runs under.
type SessionSelector interface {
	Select(ctx context.Context, hint string) (*types.Session, error)
	Touch(ctx context.Context, id uuid.UUID)
}

// Extractor turns captures into fields.
type Extractor interface {
	ExtractProfile(ctx context.Context, c extraction.Capture) (*extraction.ProfileFields, error)
	ExtractPost(ctx context.Context, c extraction.Capture) (*extraction.PostFields, error)
	ExtractInteractions(ctx context.Context, c extraction.Capture) ([]extraction.InteractionFields, error)
}

// Config holds orchestrator settings.
type Config struct {
	ProfileHost            string
	MaxPostsPerJob         int
	MaxConcurrentJobs      int
	JobTimeout             time.Duration
	StepRetryBudget        int
	StepDelayMin           time.Duration
	StepDelayMax           time.Duration
	InteractionsViewSuffix string
	// MaxInteractionsPerPost caps the interactions kept for one post, comments first.
	MaxInteractionsPerPost int
	// StateRetry governs retries of job status writes.
	StateRetry retry.Policy
	// UserAgents are used for sessions that did not record one.
	UserAgents []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ProfileHost:            "www.instagram.com",
		MaxPostsPerJob:         5,
		MaxConcurrentJobs:      4,
		JobTimeout:             10 * time.Minute,
		StepRetryBudget:        2,
		StepDelayMin:           time.Second,
		StepDelayMax:           3 * time.Second,
		InteractionsViewSuffix: "liked_by/",
		MaxInteractionsPerPost: 30,
		StateRetry:             retry.Policy{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Second},
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
	}
}

// SubmitRequest is a scrape submission. ProfileOnly jobs capture the profile and skip posts.
type SubmitRequest struct {
	TargetURL   string
	SessionHint string
	MaxPosts    int
	RecentDays  int
	ProfileOnly bool
}

// Orchestrator owns job execution.
type Orchestrator struct {
	cfg       Config
	store     Store
	sessions  SessionSelector
	browser   browser.Automation
	extractor Extractor
	logger    *slog.Logger
	progress  *progressHub

	slots  *semaphore.Weighted
	wg     sync.WaitGroup
	base   context.Context
	abort  context.CancelCauseFunc
	mu     sync.Mutex
	closed bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. Zero config values take their defaults.
func New(cfg Config, store Store, selector SessionSelector, automation browser.Automation, extractor Extractor, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.ProfileHost == "" {
		cfg.ProfileHost = def.ProfileHost
	}
	if cfg.MaxPostsPerJob <= 0 {
		cfg.MaxPostsPerJob = def.MaxPostsPerJob
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.StepRetryBudget < 0 {
		cfg.StepRetryBudget = 0
	}
	if cfg.StepDelayMax < cfg.StepDelayMin {
		cfg.StepDelayMax = cfg.StepDelayMin
	}
	if cfg.InteractionsViewSuffix == "" {
		cfg.InteractionsViewSuffix = def.InteractionsViewSuffix
	}
	if cfg.MaxInteractionsPerPost <= 0 {
		cfg.MaxInteractionsPerPost = def.MaxInteractionsPerPost
	}
	if cfg.StateRetry.MaxAttempts <= 0 {
		cfg.StateRetry = def.StateRetry
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, abort := context.WithCancelCause(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		sessions:  selector,
		browser:   automation,
		extractor: extractor,
		logger:    logger.With("component", "scraping"),
		progress:  newProgressHub(),
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		base:      base,
		abort:     abort,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submit validates a request, records a pending job and schedules its execution. It returns
// as soon as the job is stored.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*types.ScrapeJob, error) {
	target, username, err := NormalizeTarget(req.TargetURL, o.cfg.ProfileHost)
	if err != nil {
		return nil, err
	}
	if req.MaxPosts < 0 {
		return nil, &ValidationError{Field: "max_posts", Message: "must not be negative"}
	}
	if req.RecentDays < 0 {
		return nil, &ValidationError{Field: "recent_days", Message: "must not be negative"}
	}
	maxPosts := req.MaxPosts
	if maxPosts == 0 || maxPosts > o.cfg.MaxPostsPerJob {
		maxPosts = o.cfg.MaxPostsPerJob
	}
	if req.ProfileOnly {
		maxPosts = 0
	}

	job := &types.ScrapeJob{
		ID:        uuid.New(),
		TargetURL: target,
		Username:  username,
		Status:    types.JobPending,
		Options:   types.JobOptions{MaxPosts: maxPosts, RecentDays: req.RecentDays, ProfileOnly: req.ProfileOnly},
		CreatedAt: o.now(),
	}
	if hint := sessions.NormalizeAccount(req.SessionHint); hint != "" {
		job.SessionHint = &hint
	}

	// the slot is reserved before the insert so Shutdown waits for submissions in flight
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.store.CreateJob(ctx, job); err != nil {
		o.wg.Done()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	scheduled := *job
	go o.run(&scheduled)

	o.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "username", username, "max_posts", maxPosts, "profile_only", req.ProfileOnly)
	return job, nil
}

// GetStatus returns the stored job.
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return nil, &NotFoundError{ID: id}
	}
	return job, nil
}

// GetResults returns the result tree of a completed job.
func (o *Orchestrator) GetResults(ctx context.Context, id uuid.UUID) (*types.JobResults, error) {
	job, err := o.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobCompleted {
		return nil, &NotReadyError{ID: id, Status: job.Status}
	}
	results, err := o.store.GetJobResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for job %s: %w", id, err)
	}
	if results == nil {
		return nil, &NotFoundError{ID: id}
	}
	return results, nil
}

// Subscribe streams progress events for a job until its terminal event. Callers must invoke
// the returned cancel function when they stop reading.
func (o *Orchestrator) Subscribe(id uuid.UUID) (<-chan ProgressEvent, func()) {
	return o.progress.subscribe(id)
}

// Shutdown stops accepting submissions and waits for running jobs. When ctx ends first the
// remaining jobs are cancelled and recorded as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.abort(ErrShuttingDown)
		return nil
	case <-ctx.Done():
		o.abort(ErrShuttingDown)
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) emit(job *types.ScrapeJob, step, message string) {
	o.progress.publish(ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Step:      step,
		Message:   message,
		ErrorCode: job.ErrorCode,
		Time:      o.now(),
	})
}

// transition moves job to next and persists it. The state machine is the only writer of Status.
func (o *Orchestrator) transition(ctx context.Context, job *types.ScrapeJob, next types.JobStatus) error {
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w %s -> %s for job %s", errIllegalTransition, job.Status, next, job.ID)
	}
	prev := job.Status
	now := o.now()
	job.Status = next
	switch next {
	case types.JobRunning:
		job.StartedAt = &now
	case types.JobCompleted, types.JobFailed:
		job.CompletedAt = &now
	}
	if err := o.store.UpdateJob(ctx, job); err != nil {
		job.Status = prev
		return fmt.Errorf("failed to record %s for job %s: %w", next, job.ID, err)
	}
	return nil
}

// record persists a transition, retrying failed writes under the state retry policy.
func (o *Orchestrator) record(ctx context.Context, job *types.ScrapeJob, next types.JobStatus, logger *slog.Logger) error {
	retryable := func(err error) bool { return !errors.Is(err, errIllegalTransition) }
	return retry.Do(ctx, o.cfg.StateRetry, retryable, func(ctx context.Context, attempt int) error {
		err := o.transition(ctx, job, next)
		if err != nil && retryable(err) {
			logger.Warn("job status write failed", "status", next, "attempt", attempt, "error", err)
		}
		return err
	})
}

func (o *Orchestrator) run(job *types.ScrapeJob) {
	defer o.wg.Done()
	logger := observability.JobLogger(o.logger, job.ID, job.Username)

	if err := o.slots.Acquire(o.base, 1); err != nil {
		o.finish(o.base, job, nil, err, logger)
		return
	}
	defer o.slots.Release(1)

	jobCtx, cancel := context.WithTimeoutCause(o.base, o.cfg.JobTimeout, ErrJobTimeout)
	defer cancel()

	if err := o.record(jobCtx, job, types.JobRunning, logger); err != nil {
		o.finish(jobCtx, job, nil, &PersistenceError{Cause: err}, logger)
		return
	}
	o.emit(job, "start", "job started")
	logger.Info("job started")

	r := &jobRun{o: o, job: job, logger: logger, budget: o.cfg.StepRetryBudget, seen: newInteractionSet(o.cfg.ProfileHost)}
	bundle, err := r.execute(jobCtx)
	var summary *types.SaveSummary
	if err == nil {
		summary, err = o.store.SaveResults(jobCtx, bundle)
		if err != nil {
			err = &PersistenceError{Cause: err}
		}
	}
	o.finish(jobCtx, job, summary, err, logger)
}

// finish records the terminal state on a context detached from the job's deadline. Every
// write is retried; a completion that cannot be recorded is downgraded to a persistence
// failure so the job does not stay running.
func (o *Orchestrator) finish(jobCtx context.Context, job *types.ScrapeJob, summary *types.SaveSummary, runErr error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), terminalUpdateTimeout)
	defer cancel()

	if job.Status == types.JobPending {
		// never started; pass through running so the state machine is honoured
		if err := o.record(ctx, job, types.JobRunning, logger); err != nil {
			logger.Error("failed to record job start, job left pending", "error", err, "cause", runErr)
			return
		}
	}

	code, message := "", ""
	if runErr == nil {
		job.PostsScraped = summary.Posts
		job.InteractionsScraped = summary.Interactions
		err := o.record(ctx, job, types.JobCompleted, logger)
		if err == nil {
			o.emit(job, "done", fmt.Sprintf("saved %d posts and %d interactions", summary.Posts, summary.Interactions))
			logger.Info("job completed", "posts", summary.Posts, "interactions", summary.Interactions)
			return
		}
		runErr = &PersistenceError{Cause: err}
		code, message = types.ErrCodePersistenceFailed, "results were saved but the job could not be marked completed: "+err.Error()
	} else {
		code, message = classify(jobCtx, runErr)
	}

	job.ErrorCode = code
	job.ErrorMessage = &message
	if err := o.record(ctx, job, types.JobFailed, logger); err != nil {
		logger.Error("failed to record job failure, job left running", "error", err, "cause", runErr)
		return
	}
	o.emit(job, "done", message)
	logger.Warn("job failed", "error_code", code, "error", runErr)
}

// pause waits a random human-like interval between remote steps.
func (o *Orchestrator) pause(ctx context.Context) error {
	d := o.cfg.StepDelayMin
	if spread := o.cfg.StepDelayMax - o.cfg.StepDelayMin; spread > 0 {
		d += rand.N(spread)
	}
	return o.sleep(ctx, d)
}

func (o *Orchestrator) userAgent(session *types.Session) *types.Session {
	if session.UserAgent != "" || len(o.cfg.UserAgents) == 0 {
		return session
	}
	s := *session
	s.UserAgent = o.cfg.UserAgents[rand.IntN(len(o.cfg.UserAgents))]
	return &s
}

// interactionsView is the page listing every account that liked a post.
func (o *Orchestrator) interactionsView(post string) string {
	return strings.TrimSuffix(post, "/") + "/" + strings.TrimPrefix(o.cfg.InteractionsViewSuffix, "/")
}

// errIsStepRetryable reports whether a step error may consume the job's retry budget.
func errIsStepRetryable(err error) bool {
	return browser.IsTimeout(err) && !errors.Is(err, context.Canceled)
}
