package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultCleanupSchedule  = "@every 12h"
	DefaultCleanupRetention = 720 * time.Hour
	DefaultCleanupThreshold = 0.45
	DefaultBackupSchedule   = "@every 24h"
	DefaultBackupRetention  = 336 * time.Hour
)

const (
	backupPrefix = "backup-"
	backupSuffix = ".db"
	stampLayout  = "20060102T150405Z"
)

// Config selects which jobs run and when. Schedules use cron syntax or the
// "@every <duration>" shorthand.
type Config struct {
	CleanupEnabled   bool
	CleanupSchedule  string
	CleanupRetention time.Duration
	CleanupThreshold float64

	BackupEnabled   bool
	BackupSchedule  string
	BackupDir       string
	BackupRetention time.Duration

	HealthEnabled  bool
	HealthSchedule string
}

func (c *Config) applyDefaults() {
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = DefaultCleanupSchedule
	}
	if c.CleanupRetention <= 0 {
		c.CleanupRetention = DefaultCleanupRetention
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = DefaultCleanupThreshold
	}
	if c.BackupSchedule == "" {
		c.BackupSchedule = DefaultBackupSchedule
	}
	if c.BackupRetention <= 0 {
		c.BackupRetention = DefaultBackupRetention
	}
	if c.HealthSchedule == "" {
		c.HealthSchedule = DefaultHealthSchedule
	}
}

// Cleaner drops stale low-quality training data.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration, threshold float64) (int64, error)
}

// Backuper writes a consistent copy of the database to path.
type Backuper interface {
	Backup(ctx context.Context, path string) error
}

// Scheduler runs periodic housekeeping on a cron.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	cleaner  Cleaner
	backuper Backuper
	health   *HealthMonitor
	now      func() time.Time
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the schedules and registers the enabled jobs. Nothing runs
// until Start. A job that panics is logged and the scheduler keeps going.
func New(cfg Config, cleaner Cleaner, backuper Backuper) (*Scheduler, error) {
	cfg.applyDefaults()
	logger := slog.Default()
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		cleaner:  cleaner,
		backuper: backuper,
		now:      time.Now,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if cfg.CleanupEnabled && cleaner != nil {
		if _, err := s.cron.AddFunc(cfg.CleanupSchedule, func() {
			if _, err := s.RunCleanup(context.Background()); err != nil {
				s.logger.Warn("training cleanup failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
	}
	if cfg.BackupEnabled && backuper != nil {
		if cfg.BackupDir == "" {
			return nil, fmt.Errorf("backup enabled without a backup directory")
		}
		if _, err := s.cron.AddFunc(cfg.BackupSchedule, func() {
			if _, err := s.RunBackup(context.Background()); err != nil {
				s.logger.Warn("backup failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("backup schedule %q: %w", cfg.BackupSchedule, err)
		}
	}
	return s, nil
}

// WatchHealth schedules m on HealthSchedule when health checks are
// enabled. Start then runs a first cycle right away.
func (s *Scheduler) WatchHealth(m *HealthMonitor) error {
	if !s.cfg.HealthEnabled || m == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.HealthSchedule, func() { m.Run(s.ctx) }); err != nil {
		return fmt.Errorf("health schedule %q: %w", s.cfg.HealthSchedule, err)
	}
	s.health = m
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.health != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.health.Run(s.ctx)
		}()
	}
}

// Stop halts scheduling, cancels running health checks and waits for
// running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RunCleanup deletes old training entries below the quality threshold.
func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	n, err := s.cleaner.Cleanup(ctx, s.cfg.CleanupRetention, s.cfg.CleanupThreshold)
	if err != nil {
		return 0, err
	}
	s.logger.Info("training cleanup", "deleted", n)
	return n, nil
}

// RunBackup snapshots the database into BackupDir and prunes snapshots
// older than BackupRetention. It returns the new snapshot's path.
func (s *Scheduler) RunBackup(ctx context.Context) (string, error) {
	now := s.now().UTC()
	path := filepath.Join(s.cfg.BackupDir, backupPrefix+now.Format(stampLayout)+backupSuffix)
	if err := s.backuper.Backup(ctx, path); err != nil {
		return "", err
	}

	pruned, err := pruneBackups(s.cfg.BackupDir, now.Add(-s.cfg.BackupRetention))
	if err != nil {
		s.logger.Warn("pruning backups failed", "error", err)
	}
	s.logger.Info("backup written", "path", path, "pruned", pruned)
	return path, nil
}

// pruneBackups removes snapshots stamped before cutoff. Files that do not
// follow the snapshot naming are left alone.
func pruneBackups(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading backup directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
		t, err := time.Parse(stampLayout, stamp)
		if err != nil || !t.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("removing %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
