// Package repository stores imported transactions in Postgres and answers
// cross-batch dedupe lookups.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ingest/pkg/db"
)

// Conn is the pool surface the repository needs. *pgxpool.Pool satisfies it.
type Conn interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ImportRepository is both the service Sink and its dedupe Index.
type ImportRepository struct {
	conn Conn
}

// NewImportRepository creates a new import repository
func NewImportRepository(conn Conn) *ImportRepository {
	return &ImportRepository{conn: conn}
}

// ExistingHashes returns which of hashes are already stored for userID.
func (r *ImportRepository) ExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(hashes) == 0 {
		return existing, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT dedupe_hash
		FROM transactions
		WHERE user_id = $1 AND dedupe_hash = ANY($2)
	`, userID, hashes)
	if err != nil {
		return nil, fmt.Errorf("querying dedupe hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning dedupe hash: %w", err)
		}
		existing[h] = true
	}
	return existing, rows.Err()
}

// Save records the batch and inserts its transactions in one database
// transaction. Rows whose (user_id, dedupe_hash) already exist are skipped;
// the returned count covers new rows only.
func (r *ImportRepository) Save(ctx context.Context, result *service.Result) (inserted int, err error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO import_batches (id, user_id, filename, kind, fingerprint, total_rows, successful, failed, duplicates)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`,
		result.BatchID.String(),
		result.UserID,
		result.Filename,
		string(result.Kind),
		result.Meta.Fingerprint,
		result.Stats.TotalRows,
		result.Stats.Successful,
		result.Stats.Failed,
		result.Stats.Duplicates,
	)
	if err != nil {
		return 0, fmt.Errorf("creating import batch: %w", err)
	}

	if len(result.Transactions) > 0 {
		if inserted, err = insertTransactions(ctx, tx, result); err != nil {
			return 0, err
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE import_batches SET inserted = $2 WHERE id = $1`,
		result.BatchID.String(), inserted); err != nil {
		return 0, fmt.Errorf("updating import batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return inserted, nil
}

// transactionColumns is the column-major form of a batch, sent as one array
// per column and expanded server-side with unnest.
type transactionColumns struct {
	ids, hashes, dates, descriptions, amounts []string
	merchants, categories, matchedBy, ruleIDs []string
	raw                                       []string
	income                                    []bool
	gst                                       []*float64
	confidence                                []float64
}

func insertTransactions(ctx context.Context, tx pgx.Tx, result *service.Result) (int, error) {
	n := len(result.Transactions)
	c := transactionColumns{
		ids: make([]string, n), hashes: make([]string, n), dates: make([]string, n),
		descriptions: make([]string, n), amounts: make([]string, n), merchants: make([]string, n),
		categories: make([]string, n), matchedBy: make([]string, n), ruleIDs: make([]string, n),
		raw: make([]string, n), income: make([]bool, n), gst: make([]*float64, n),
		confidence: make([]float64, n),
	}

	for i, t := range result.Transactions {
		raw, err := json.Marshal(t.Raw)
		if err != nil {
			return 0, fmt.Errorf("encoding row %d: %w", t.Row, err)
		}
		c.ids[i] = uuid.NewString()
		c.hashes[i] = t.DedupeHash
		c.dates[i] = t.Date
		c.descriptions[i] = t.Description
		c.amounts[i] = t.Amount.Abs().StringFixed(2)
		c.income[i] = t.IsIncome
		c.merchants[i] = t.Merchant
		c.categories[i] = t.Category
		c.gst[i] = t.GSTRate
		c.confidence[i] = t.CategoryConfidence
		c.matchedBy[i] = t.MatchedBy
		c.ruleIDs[i] = t.RuleID
		c.raw[i] = string(raw)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, user_id, batch_id, txn_date, description, amount, is_income,
			merchant, category, gst_rate, category_confidence, matched_by, rule_id,
			dedupe_hash, raw
		)
		SELECT
			u.id::uuid, $1, $2::uuid, u.txn_date::date, u.description, u.amount::numeric, u.is_income,
			NULLIF(u.merchant, ''), NULLIF(u.category, ''), u.gst_rate, u.confidence,
			NULLIF(u.matched_by, ''), NULLIF(u.rule_id, ''), u.dedupe_hash, u.raw::jsonb
		FROM unnest(
			$3::text[], $4::text[], $5::text[], $6::text[], $7::boolean[],
			$8::text[], $9::text[], $10::float8[], $11::float8[], $12::text[],
			$13::text[], $14::text[], $15::text[]
		) AS u(id, txn_date, description, amount, is_income,
			merchant, category, gst_rate, confidence, matched_by,
			rule_id, dedupe_hash, raw)
		ON CONFLICT (user_id, dedupe_hash) DO NOTHING
	`,
		result.UserID, result.BatchID.String(),
		c.ids, c.dates, c.descriptions, c.amounts, c.income,
		c.merchants, c.categories, c.gst, c.confidence, c.matchedBy,
		c.ruleIDs, c.hashes, c.raw,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
