// Package scheduler runs the stock snapshot recomputation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/stock"
)

// Job is a recomputation pass.
type Job interface {
	RecomputeAll(ctx context.Context) (stock.Report, error)
}

// Scheduler triggers Job on a cron spec. Overlapping cron runs are skipped;
// a run that collides with a manual pass is refused by the job itself.
type Scheduler struct {
	cron    *cron.Cron
	job     Job
	spec    string
	timeout time.Duration
}

// New validates spec (standard five-field cron or a descriptor such as
// "@every 10m") and prepares the scheduler. timeout bounds each run; zero
// leaves runs unbounded.
func New(spec string, job Job, timeout time.Duration) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("recompute schedule must not be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse recompute schedule %q: %w", spec, err)
	}

	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job:     job,
		spec:    spec,
		timeout: timeout,
	}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule recompute: %w", err)
	}
	applog.Info(context.Background(), "recompute scheduler started", "schedule", s.spec)
	s.cron.Start()
	return nil
}

// Stop prevents new runs and waits for a running one to finish or for ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	applog.Info(ctx, "stopping recompute scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		applog.Warn(ctx, "recompute still running at shutdown")
	}
}

// RunOnce executes a single pass and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (stock.Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.job.RecomputeAll(ctx)
	if errs.IsBusy(err) {
		applog.Info(ctx, "scheduled recompute skipped: a pass is already running")
		return report, err
	}
	if err != nil {
		applog.Error(ctx, "scheduled recompute failed", "error", err)
		return report, err
	}
	if report.Failed() > 0 {
		applog.Warn(ctx, "scheduled recompute finished with failures",
			"computed", report.Computed,
			"failed", report.Failed(),
			"errors", strings.Join(report.FailureMessages(), "; "),
		)
		return report, nil
	}
	applog.Info(ctx, "scheduled recompute finished", "computed", report.Computed)
	return report, nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	applog.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	applog.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}
