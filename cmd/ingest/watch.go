package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/detector"
	importservice "github.com/FACorreiaa/statement-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ingest/pkg/cron"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// runWatch sweeps the inbox until ctx is cancelled, serving /metrics
// alongside.
func runWatch(ctx context.Context, deps *Dependencies, userID string) error {
	cfg := deps.Config
	scheduler := cron.NewScheduler(cron.Config{
		InboxDir:       cfg.Watch.InboxDir,
		Schedule:       cfg.Watch.Schedule,
		FilesPerSecond: cfg.Watch.FilesPerSecond,
	}, inboxHandler(deps, userID), deps.Logger)

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	return deps.Metrics.Serve(ctx, cfg.Observability.MetricsPort, deps.Logger)
}

// inboxHandler imports one inbox file and archives it. Files the pipeline
// rejects are archived as failed so they are not retried; storage errors
// leave the file in the inbox. Files with an unsupported name are archived
// as failed without reading their content.
func inboxHandler(deps *Dependencies, userID string) cron.FileFunc {
	return func(ctx context.Context, path string) error {
		name := filepath.Base(path)
		contentType := mime.TypeByExtension(filepath.Ext(name))
		entry := storage.Entry{
			UserID:      userID,
			Filename:    name,
			ContentType: contentType,
		}

		if err := detector.ValidateFilename(name); err != nil {
			entry.Status = storage.StatusFailed
			entry.Error = err.Error()
			_, err = archive(ctx, deps, entry, nil, nil)
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, _, err = importAndArchive(ctx, deps, entry, data)
		return err
	}
}

// importAndArchive imports data and archives it with the outcome. Import
// failures are recorded on the archive entry; only retryable failures and
// archive errors are returned.
func importAndArchive(ctx context.Context, deps *Dependencies, entry storage.Entry, data []byte) (*importservice.Result, *storage.FileInfo, error) {
	result, err := deps.ImportService.Import(ctx, importservice.Input{
		UserID:      entry.UserID,
		Filename:    entry.Filename,
		ContentType: entry.ContentType,
		Data:        data,
		Rules:       deps.Rules,
	})
	switch {
	case err == nil:
		entry.Status = storage.StatusImported
		entry.BatchID = result.BatchID.String()
	case isRetryable(err):
		return nil, nil, err
	default:
		entry.Status = storage.StatusFailed
		entry.Error = err.Error()
	}

	info, err := archive(ctx, deps, entry, data, result)
	if err != nil {
		return nil, nil, err
	}
	return result, info, nil
}

func archive(ctx context.Context, deps *Dependencies, entry storage.Entry, data []byte, result *importservice.Result) (*storage.FileInfo, error) {
	info, err := deps.Archive.Put(ctx, entry, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", entry.Filename, err)
	}

	attrs := []any{
		slog.String("file", entry.Filename),
		slog.String("archive_id", info.ID.String()),
		slog.String("status", string(info.Status)),
	}
	if entry.Error != "" {
		attrs = append(attrs, slog.String("error", entry.Error))
	}
	if result != nil {
		attrs = append(attrs,
			slog.Int("inserted", result.Inserted),
			slog.Int("failed", result.Stats.Failed),
			slog.Int("duplicates", result.Stats.Duplicates))
	}
	deps.Logger.InfoContext(ctx, "file archived", attrs...)
	return info, nil
}

// isRetryable reports failures caused by the environment rather than the
// file: cancellation and persistence errors.
func isRetryable(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, importservice.ErrStore)
}
