package categorization

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RuleStore persists user rules. *Repository satisfies it.
type RuleStore interface {
	ActiveRules(ctx context.Context, userID string) ([]Rule, error)
	SaveRule(ctx context.Context, rule *Rule) error
}

// Service hands out compiled rule sets per user, caching them until a rule
// changes.
type Service struct {
	store  RuleStore
	logger *slog.Logger

	cache   map[string]*RuleSet
	cacheMu sync.RWMutex
}

// NewService creates a rule service over store.
func NewService(store RuleStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		cache:  make(map[string]*RuleSet),
	}
}

// RuleSet returns the compiled active rules for userID.
func (s *Service) RuleSet(ctx context.Context, userID string) (*RuleSet, error) {
	s.cacheMu.RLock()
	rs, ok := s.cache[userID]
	s.cacheMu.RUnlock()
	if ok {
		return rs, nil
	}

	rules, err := s.store.ActiveRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading rules for %s: %w", userID, err)
	}
	rs = NewRuleSet(rules)
	for _, d := range rs.Diagnostics() {
		s.logger.WarnContext(ctx, "rule condition ignored",
			slog.String("user_id", userID),
			slog.String("rule_id", d.RuleID),
			slog.Int("line", d.Line),
			slog.Any("error", d.Err))
	}

	s.cacheMu.Lock()
	s.cache[userID] = rs
	s.cacheMu.Unlock()
	return rs, nil
}

// SaveRules upserts rules and drops the cached sets of every affected user.
func (s *Service) SaveRules(ctx context.Context, rules []Rule) error {
	for i := range rules {
		if err := s.store.SaveRule(ctx, &rules[i]); err != nil {
			return err
		}
		s.Invalidate(rules[i].UserID)
	}
	return nil
}

// Invalidate forgets the cached rule set for userID.
func (s *Service) Invalidate(userID string) {
	s.cacheMu.Lock()
	delete(s.cache, userID)
	s.cacheMu.Unlock()
}
