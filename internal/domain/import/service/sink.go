package service

import (
	"context"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/dedupe"
)

// MemorySink records accepted hashes in a MemoryIndex. Paired with
// WithHashIndex on the same index it gives cross-file dedupe for the life
// of the process.
type MemorySink struct {
	Index *dedupe.MemoryIndex
}

func (m MemorySink) Save(_ context.Context, result *Result) (int, error) {
	hashes := make([]string, len(result.Transactions))
	for i, tx := range result.Transactions {
		hashes[i] = tx.DedupeHash
	}
	return m.Index.Remember(result.UserID, hashes...), nil
}
