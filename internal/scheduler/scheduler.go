package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultHitCheckSpec = "@every 5m"
	DefaultDigestSpec   = "* * * * *"
)

// Stats is a snapshot of the most recent ticks.
type Stats struct {
	Running        bool          `json:"running"`
	LastHitCheck   *CycleResult  `json:"last_hit_check,omitempty"`
	LastDigest     *DigestResult `json:"last_digest,omitempty"`
	HitCheckRuns   int64         `json:"hit_check_runs"`
	DigestRuns     int64         `json:"digest_runs"`
	NextHitCheckAt *time.Time    `json:"next_hit_check_at,omitempty"`
	NextDigestAt   *time.Time    `json:"next_digest_at,omitempty"`
}

// Runner drives the detector and the digest on their own cron schedules.
// A slow detector cycle makes the next one skip; digest ticks never wait
// for each other.
type Runner struct {
	cron     *cron.Cron
	detector *Detector
	digest   *Digest
	log      *zap.Logger

	hitSpec    string
	digestSpec string
	hitEntry   cron.EntryID
	digestEnt  cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a Runner. Empty specs fall back to the defaults; specs
// are evaluated in loc.
func NewRunner(detector *Detector, digest *Digest, hitSpec, digestSpec string, loc *time.Location, log *zap.Logger) *Runner {
	if hitSpec == "" {
		hitSpec = DefaultHitCheckSpec
	}
	if digestSpec == "" {
		digestSpec = DefaultDigestSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{s: log.Named("cron").Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		detector:   detector,
		digest:     digest,
		log:        log,
		hitSpec:    hitSpec,
		digestSpec: digestSpec,
	}
}

// Start registers both jobs and starts the cron loop. Jobs run with a
// context derived from ctx that is only canceled by Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	skip := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s: r.log.Named("cron").Sugar()}))
	id, err := r.cron.AddJob(r.hitSpec, skip.Then(cron.FuncJob(r.runHitCheck)))
	if err != nil {
		return fmt.Errorf("add hit check %q: %w", r.hitSpec, err)
	}
	r.hitEntry = id

	id, err = r.cron.AddFunc(r.digestSpec, r.runDigest)
	if err != nil {
		return fmt.Errorf("add digest %q: %w", r.digestSpec, err)
	}
	r.digestEnt = id

	r.cron.Start()
	r.mu.Lock()
	r.stats.Running = true
	r.mu.Unlock()
	r.log.Info("scheduler started",
		zap.String("hit_check", r.hitSpec),
		zap.String("digest", r.digestSpec),
	)
	return nil
}

// Stop stops scheduling and waits for in-flight ticks until ctx expires,
// after which their context is canceled.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("scheduler stop timed out, canceling running ticks")
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Lock()
	r.stats.Running = false
	r.mu.Unlock()
	r.log.Info("scheduler stopped")
}

func (r *Runner) runHitCheck() {
	res := r.detector.RunCycle(r.ctx)
	r.mu.Lock()
	r.stats.LastHitCheck = &res
	r.stats.HitCheckRuns++
	r.mu.Unlock()
}

func (r *Runner) runDigest() {
	res := r.digest.Tick(r.ctx)
	r.mu.Lock()
	r.stats.LastDigest = &res
	r.stats.DigestRuns++
	r.mu.Unlock()
}

// Stats returns the latest tick summaries and the next planned runs.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	st := r.stats
	r.mu.Unlock()

	if st.Running {
		if e := r.cron.Entry(r.hitEntry); e.Valid() && !e.Next.IsZero() {
			t := e.Next
			st.NextHitCheckAt = &t
		}
		if e := r.cron.Entry(r.digestEnt); e.Valid() && !e.Next.IsZero() {
			t := e.Next
			st.NextDigestAt = &t
		}
	}
	return st
}

// cronLogger adapts zap to cron.Logger. Routine cron chatter goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
