package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

type sessionSweepRunner interface {
	SweepSessions(ctx context.Context) (*models.SessionSweepResult, error)
}

// SessionSweeper runs the section activity sweep on a cron schedule.
type SessionSweeper struct {
	runner   sessionSweepRunner
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewSessionSweeper builds a sweeper; Start registers the schedule.
func NewSessionSweeper(runner sessionSweepRunner, schedule string, timeout time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@hourly"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	l := cronLogger{logger.Sugar().Named("session-sweep")}
	return &SessionSweeper{
		runner:   runner,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
	}
}

// Start registers the job and starts the scheduler.
func (s *SessionSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("session sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *SessionSweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("session sweep still running at shutdown")
	}
}

// RunOnce executes a single sweep bounded by the configured timeout.
func (s *SessionSweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.runner.SweepSessions(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", zap.Error(err))
		return
	}
	s.logger.Debug("session sweep finished",
		zap.Int("activated", result.Activated),
		zap.Int("deactivated", result.Deactivated),
	)
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
