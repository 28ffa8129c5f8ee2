package categorization

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuleStore struct {
	rules   map[string][]Rule
	loads   int
	saved   []Rule
	loadErr error
}

func (f *fakeRuleStore) ActiveRules(_ context.Context, userID string) ([]Rule, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.rules[userID], nil
}

func (f *fakeRuleStore) SaveRule(_ context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = "generated"
	}
	f.saved = append(f.saved, *rule)
	return nil
}

func TestService_RuleSetCached(t *testing.T) {
	store := &fakeRuleStore{rules: map[string][]Rule{
		"u1": {{ID: "r1", Conditions: "netflix", TargetCategory: "Subscriptions", Active: true}},
	}}
	svc := NewService(store, nil)
	ctx := context.Background()

	rs, err := svc.RuleSet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	again, err := svc.RuleSet(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, rs, again)
	assert.Equal(t, 1, store.loads)

	svc.Invalidate("u1")
	_, err = svc.RuleSet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestService_UnknownUserHasNoRules(t *testing.T) {
	svc := NewService(&fakeRuleStore{}, nil)

	rs, err := svc.RuleSet(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}

func TestService_LoadError(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(&fakeRuleStore{loadErr: boom}, nil)

	_, err := svc.RuleSet(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestService_SaveRulesInvalidates(t *testing.T) {
	store := &fakeRuleStore{rules: map[string][]Rule{}}
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.RuleSet(ctx, "u1")
	require.NoError(t, err)

	rules := []Rule{{UserID: "u1", Conditions: "uber", TargetCategory: "Transport", Active: true}}
	require.NoError(t, svc.SaveRules(ctx, rules))
	assert.Equal(t, "generated", rules[0].ID)
	require.Len(t, store.saved, 1)

	_, err = svc.RuleSet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}
