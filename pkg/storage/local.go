package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaDir = ".meta"

// LocalArchive implements Archive on the local filesystem. Each user gets a
// directory; metadata lives beside the files as JSON.
type LocalArchive struct {
	basePath string
	now      func() time.Time
}

// NewLocalArchive creates the base directory if needed.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath, now: time.Now}, nil
}

// Put stores r under a uuid-prefixed name and writes its metadata.
func (a *LocalArchive) Put(_ context.Context, e Entry, r io.Reader) (*FileInfo, error) {
	if e.Status == "" {
		e.Status = StatusImported
	}
	id := uuid.New()

	userDir, err := a.userDir(e.UserID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	stored := fmt.Sprintf("%s_%s", id.String()[:8], sanitizeFilename(filepath.Base(e.Filename)))
	filePath := filepath.Join(userDir, stored)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &FileInfo{
		ID:          id,
		UserID:      e.UserID,
		Name:        e.Filename,
		Size:        size,
		ContentType: e.ContentType,
		Path:        stored,
		BatchID:     e.BatchID,
		Status:      e.Status,
		Error:       e.Error,
		ArchivedAt:  a.now().UTC(),
	}
	if err := a.saveMetadata(userDir, info); err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return info, nil
}

func (a *LocalArchive) Open(ctx context.Context, userID string, id uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := a.Info(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	userDir, err := a.userDir(userID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(userDir, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

func (a *LocalArchive) Info(_ context.Context, userID string, id uuid.UUID) (*FileInfo, error) {
	userDir, err := a.userDir(userID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(userDir, metaDir, id.String()+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

func (a *LocalArchive) List(ctx context.Context, userID string) ([]*FileInfo, error) {
	userDir, err := a.userDir(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(userDir, metaDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []*FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		info, err := a.Info(ctx, userID, id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ArchivedAt.Before(files[j].ArchivedAt)
	})
	return files, nil
}

func (a *LocalArchive) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	info, err := a.Info(ctx, userID, id)
	if err != nil {
		return err
	}
	userDir, err := a.userDir(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(userDir, info.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(filepath.Join(userDir, metaDir, id.String()+".json")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

func (a *LocalArchive) userDir(userID string) (string, error) {
	safe := sanitizeFilename(userID)
	if safe == "" || safe == "." {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return filepath.Join(a.basePath, safe), nil
}

func (a *LocalArchive) saveMetadata(userDir string, info *FileInfo) error {
	dir := filepath.Join(userDir, metaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, info.ID.String()+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// sanitizeFilename replaces path separators and characters that are unsafe
// on common filesystems.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
