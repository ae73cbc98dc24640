package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"media-tracker/internal/timeutil"
)

// Scheduler runs the weekly database backup.
type Scheduler struct {
	backupSvc *BackupService
	log       *zap.Logger
	after     func(time.Duration) <-chan time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler(backupSvc *BackupService, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		backupSvc: backupSvc,
		log:       log.Named("scheduler"),
		after:     time.After,
		stop:      make(chan struct{}),
	}
}

// Start launches the backup loop. Stop or cancelling ctx ends it.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWeeklyBackup(ctx)
	}()
	s.log.Info("scheduler started", zap.String("backup", "sundays 03:00"))
}

// Stop ends the backup loop and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) runWeeklyBackup(ctx context.Context) {
	for {
		next := nextBackupTime(timeutil.Now().Local())
		wait := time.Until(next)
		s.log.Debug("next backup scheduled", zap.Time("at", next), zap.Duration("in", wait.Round(time.Minute)))

		select {
		case <-s.after(wait):
			path, err := s.backupSvc.Backup(ctx)
			if err != nil {
				s.log.Error("backup failed", zap.Error(err))
				continue
			}
			s.log.Info("backup created", zap.String("path", path))
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nextBackupTime returns the next Sunday 03:00 strictly after now.
func nextBackupTime(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	at := time.Date(now.Year(), now.Month(), now.Day()+days, 3, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}
