package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// listArchive prints the user's archived files, oldest first.
func listArchive(ctx context.Context, deps *Dependencies, userID string, stdout io.Writer) error {
	files, err := deps.Archive.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing archive: %w", err)
	}
	enc := json.NewEncoder(stdout)
	for _, f := range files {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// retryArchived imports an archived file again. The old entry is replaced by
// one carrying the new outcome; a retryable failure leaves it untouched.
// It reports whether the import succeeded.
func retryArchived(ctx context.Context, deps *Dependencies, userID, rawID string, stdout io.Writer) (bool, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return false, fmt.Errorf("invalid archive id %q: %w", rawID, err)
	}

	rc, info, err := deps.Archive.Open(ctx, userID, id)
	if err != nil {
		return false, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return false, fmt.Errorf("reading archived file: %w", err)
	}

	result, archived, err := importAndArchive(ctx, deps, storage.Entry{
		UserID:      userID,
		Filename:    info.Name,
		ContentType: info.ContentType,
	}, data)
	if err != nil {
		return false, err
	}
	if err := deps.Archive.Delete(ctx, userID, id); err != nil {
		return false, fmt.Errorf("removing archive entry %s: %w", id, err)
	}
	deps.Logger.InfoContext(ctx, "archived file retried",
		slog.String("previous_id", id.String()),
		slog.String("archive_id", archived.ID.String()),
		slog.String("status", string(archived.Status)))

	enc := json.NewEncoder(stdout)
	if archived.Status == storage.StatusFailed {
		return false, enc.Encode(failure{File: info.Name, Error: archived.Error, Transactions: []string{}})
	}
	return true, enc.Encode(result)
}
