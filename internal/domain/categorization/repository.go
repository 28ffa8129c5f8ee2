package categorization

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ingest/pkg/db"
)

// Repository handles database operations for categorization rules
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new categorization repository
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// ActiveRules fetches a user's active rules in evaluation order.
func (r *Repository) ActiveRules(ctx context.Context, userID string) ([]Rule, error) {
	query := `
		SELECT id, user_id, name, conditions, target_category, gst_rate, active, priority, created_at
		FROM category_rules
		WHERE user_id = $1 AND active
		ORDER BY priority ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.UserID,
			&rule.Name,
			&rule.Conditions,
			&rule.TargetCategory,
			&rule.GSTRate,
			&rule.Active,
			&rule.Priority,
			&rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SaveRule inserts or updates a rule by id. Rules without an id get one.
func (r *Repository) SaveRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	query := `
		INSERT INTO category_rules (id, user_id, name, conditions, target_category, gst_rate, active, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			conditions = EXCLUDED.conditions,
			target_category = EXCLUDED.target_category,
			gst_rate = EXCLUDED.gst_rate,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Name,
		rule.Conditions,
		rule.TargetCategory,
		rule.GSTRate,
		rule.Active,
		rule.Priority,
	).Scan(&rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving rule %s: %w", rule.ID, err)
	}
	return nil
}
