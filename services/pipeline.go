package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/storage"
	"yad2-pipeline/utils"
)

// EventSnapshotReady is the event name published after a successful clean.
const EventSnapshotReady = "listings.snapshot.ready"

// RunClean reads the raw file, cleans it and replaces the snapshot.
// A missing raw file is returned as storage.ErrRawInputMissing before
// anything is written.
func RunClean(ctx context.Context, cfg *config.Config, notifier Notifier, logger *utils.Logger) (*models.RunSummary, error) {
	runID := uuid.NewString()
	started := time.Now()

	logger.Info("[clean] Run %s — reading %s", runID, cfg.RawPath)
	table, err := storage.ReadRawCSV(cfg.RawPath)
	if err != nil {
		return nil, err
	}

	cleaned, summary := NewCleaner(cfg.Pipeline, logger).Clean(table)
	summary.RunID = runID
	summary.StartedAt = started
	summary.OutputPath = cfg.CleanPath

	if err := storage.WriteCleanedCSV(cfg.CleanPath, cleaned); err != nil {
		return nil, err
	}

	ev := models.SnapshotEvent{
		RunID: runID,
		Event: EventSnapshotReady,
		Path:  cfg.CleanPath,
		Rows:  summary.RowsWritten,
		At:    time.Now().UTC(),
	}
	if err := notifier.Publish(ctx, ev); err != nil {
		logger.Warn("[clean] Snapshot written but event not published: %v", err)
	}

	return summary, nil
}
