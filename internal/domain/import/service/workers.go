package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/FACorreiaa/statement-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/mapping"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// rowJob holds the read-only state shared by every row of one file.
type rowJob struct {
	normalizer  *normalizer.Normalizer
	categorizer *categorization.Categorizer
	mapping     mapping.ColumnMapping
	rules       *categorization.RuleSet
	userID      string
}

type rowOutcome struct {
	row int
	tx  *normalizer.Transaction
	err error
}

// run normalizes and categorizes one row. It depends on nothing but its
// inputs, so rows may run in any order.
func (j rowJob) run(row record.RawRow) (out rowOutcome) {
	out.row = row.Line
	defer func() {
		if r := recover(); r != nil {
			out.tx = nil
			out.err = fmt.Errorf("unexpected error: %v", r)
		}
	}()

	tx, err := j.normalizer.Normalize(row, j.mapping, j.userID)
	if err != nil {
		out.err = err
		return out
	}

	cat := j.categorizer.Categorize(tx.Description, tx.Merchant, tx.GSTRate, j.rules)
	rate := cat.GSTRate
	tx.Category = cat.Category
	tx.GSTRate = &rate
	tx.CategoryConfidence = cat.Confidence
	tx.MatchedBy = string(cat.MatchedBy)
	tx.RuleID = cat.RuleID

	out.tx = tx
	return out
}

// transform runs job over rows and returns outcomes in input order. With more
// than one worker, rows are fanned out to a pool and reassembled by index.
func (s *ImportService) transform(ctx context.Context, rows []record.RawRow, job rowJob) ([]rowOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "import.transform")
	defer span.End()

	out := make([]rowOutcome, len(rows))

	workers := min(s.opts.Workers, len(rows))
	if workers <= 1 {
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = job.run(row)
		}
		return out, nil
	}

	jobs := make(chan int, workers*4)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = job.run(rows[i])
			}
		}()
	}

feed:
	for i := range rows {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
