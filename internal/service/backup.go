package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"media-tracker/internal/timeutil"
)

const backupPrefix = "media_tracker_backup_"

// Snapshotter writes a consistent copy of the database to a file.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// BackupService handles database backup operations
type BackupService struct {
	db         Snapshotter
	backupDir  string
	maxBackups int
	log        *zap.Logger
}

// NewBackupService creates a new BackupService keeping the newest keep snapshots.
func NewBackupService(db Snapshotter, backupDir string, keep int, log *zap.Logger) *BackupService {
	if keep <= 0 {
		keep = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BackupService{
		db:         db,
		backupDir:  backupDir,
		maxBackups: keep,
		log:        log.Named("backup"),
	}
}

// Backup snapshots the database and prunes old snapshots.
func (b *BackupService) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + timeutil.Now().Format("2006-01-02_150405.000000") + ".db"
	backupPath := filepath.Join(b.backupDir, name)
	if err := b.db.Snapshot(ctx, backupPath); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}

	// Backup was successful even if pruning fails
	if err := b.CleanOldBackups(); err != nil {
		b.log.Warn("failed to clean old backups", zap.Error(err))
	}
	return backupPath, nil
}

// GetLastBackupTime returns the modification time of the newest backup, or
// the zero time when there is none.
func (b *BackupService) GetLastBackupTime() (time.Time, error) {
	backups, err := b.listBackups()
	if err != nil || len(backups) == 0 {
		return time.Time{}, err
	}
	info, err := os.Stat(backups[len(backups)-1])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat backup file: %w", err)
	}
	return info.ModTime(), nil
}

// CleanOldBackups removes old backups, keeping only the most recent ones
func (b *BackupService) CleanOldBackups() error {
	backups, err := b.listBackups()
	if err != nil {
		return err
	}
	if len(backups) <= b.maxBackups {
		return nil
	}
	for _, backup := range backups[:len(backups)-b.maxBackups] {
		if err := os.Remove(backup); err != nil {
			return fmt.Errorf("failed to delete old backup %s: %w", backup, err)
		}
	}
	return nil
}

// listBackups returns backup files oldest first; names embed the timestamp.
func (b *BackupService) listBackups() ([]string, error) {
	entries, err := os.ReadDir(b.backupDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), backupPrefix) && strings.HasSuffix(entry.Name(), ".db") {
			backups = append(backups, filepath.Join(b.backupDir, entry.Name()))
		}
	}
	sort.Strings(backups)
	return backups, nil
}
