// Package cron sweeps an inbox directory on a robfig/cron schedule.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// FileFunc handles one inbox file. Returning nil removes the file from the
// inbox; an error leaves it for the next sweep.
type FileFunc func(ctx context.Context, path string) error

// Config configures a Scheduler.
type Config struct {
	InboxDir string
	// Schedule is a standard 5-field expression or a descriptor such as "@every 1m".
	Schedule string
	// FilesPerSecond caps how fast a sweep hands files to the FileFunc.
	FilesPerSecond float64
}

// Scheduler runs inbox sweeps. A sweep that is still running when the next
// one fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	limiter *rate.Limiter
	handle  FileFunc
	logger  *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new inbox scheduler.
func NewScheduler(cfg Config, handle FileFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilesPerSecond <= 0 {
		cfg.FilesPerSecond = 1
	}
	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:    c,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FilesPerSecond), 1),
		handle:  handle,
		logger:  logger,
	}
}

// Start schedules the sweep. Sweeps stop when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.InboxDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runSweep); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("inbox scheduler started",
		slog.String("inbox", s.cfg.InboxDir),
		slog.String("schedule", s.cfg.Schedule),
		slog.Float64("files_per_second", s.cfg.FilesPerSecond),
	)
	return nil
}

// Stop cancels in-flight sweeps and returns a context that is done once
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("inbox scheduler stopping")
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("inbox sweep failed", slog.Any("error", err))
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Processed int
	Failed    int
}

// Sweep hands every regular, non-hidden inbox file to the FileFunc in name
// order, waiting on the rate limiter between files.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	files, err := s.pending()
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, nil
	}
	s.logger.Debug("inbox sweep", slog.Int("files", len(files)))

	for _, path := range files {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}

		if err := s.handle(ctx, path); err != nil {
			res.Failed++
			s.logger.Warn("inbox file left for retry",
				slog.String("file", filepath.Base(path)),
				slog.Any("error", err),
			)
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove inbox file",
				slog.String("file", filepath.Base(path)),
				slog.Any("error", err),
			)
		}
		res.Processed++
	}

	s.logger.Info("inbox sweep completed",
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Scheduler) pending() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(s.cfg.InboxDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
