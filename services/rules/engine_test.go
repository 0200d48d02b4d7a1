package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/models"
)

func leaf(field, operator, value string) models.JSONMap {
	return models.JSONMap{"field": field, "operator": operator, "value": value}
}

func newMessage() *models.InboundMessage {
	return &models.InboundMessage{
		From:     "ceo@bigcorp.com",
		To:       []string{"support@taskwell.io"},
		Subject:  "URGENT: production is down",
		BodyText: "Please help, nothing loads.",
	}
}

func TestCompile_SkipsDisabledRules(t *testing.T) {
	engine := NewEngine(nil)

	set, failures := engine.Compile(context.Background(), []*models.Rule{
		{ID: "rule_1", Enabled: false, Conditions: leaf("subject", "contains", "urgent")},
		{ID: "rule_2", Enabled: true, Conditions: leaf("subject", "contains", "urgent")},
	})

	assert.Empty(t, failures)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, "rule_2", set.Rules[0].Rule.ID)
}

func TestCompile_BadRegexDoesNotPoisonTheSet(t *testing.T) {
	engine := NewEngine(nil)

	set, failures := engine.Compile(context.Background(), []*models.Rule{
		{ID: "rule_bad", Enabled: true, Conditions: leaf("subject", "matches", "([unclosed")},
		{ID: "rule_good", Enabled: true, Conditions: leaf("subject", "contains", "urgent")},
	})

	require.Len(t, failures, 1)
	assert.Equal(t, "rule_bad", failures[0].RuleID)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, "rule_good", set.Rules[0].Rule.ID)
}

func TestCompile_UnknownVocabularyFails(t *testing.T) {
	engine := NewEngine(nil)

	_, failures := engine.Compile(context.Background(), []*models.Rule{
		{ID: "rule_field", Enabled: true, Conditions: leaf("telephone", "contains", "x")},
		{ID: "rule_op", Enabled: true, Conditions: leaf("subject", "sounds_like", "x")},
		{ID: "rule_action", Enabled: true, Conditions: leaf("subject", "contains", "x"), Actions: models.JSONArray{map[string]interface{}{"type": "explode"}}},
	})

	assert.Len(t, failures, 3)
}

func TestEvaluate_OperatorsAreCaseInsensitive(t *testing.T) {
	engine := NewEngine(nil)
	message := newMessage()

	cases := []struct {
		name       string
		conditions models.JSONMap
		matched    bool
	}{
		{"contains lowercase needle", leaf("subject", "contains", "urgent"), true},
		{"equals folds case", leaf("from", "equals", "CEO@BigCorp.com"), true},
		{"startsWith folds case", leaf("subject", "startsWith", "urgent:"), true},
		{"contains miss", leaf("subject", "contains", "invoice"), false},
		{"regex on body", leaf("body", "matches", `(?i)nothing\s+loads`), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, failures := engine.Compile(context.Background(), []*models.Rule{
				{ID: "rule_1", Enabled: true, Conditions: tc.conditions},
			})
			require.Empty(t, failures)

			result := engine.Evaluate(context.Background(), set, message)
			assert.Equal(t, tc.matched, result.Matched())
		})
	}
}

func TestEvaluate_CombinatorSemantics(t *testing.T) {
	engine := NewEngine(nil)
	message := newMessage()

	cases := []struct {
		name       string
		conditions models.JSONMap
		matched    bool
	}{
		{
			"any is an OR",
			models.JSONMap{"any": []interface{}{
				map[string]interface{}{"field": "subject", "operator": "contains", "value": "invoice"},
				map[string]interface{}{"field": "from", "operator": "contains", "value": "bigcorp"},
			}},
			true,
		},
		{
			"all is an AND",
			models.JSONMap{"all": []interface{}{
				map[string]interface{}{"field": "subject", "operator": "contains", "value": "urgent"},
				map[string]interface{}{"field": "from", "operator": "contains", "value": "smallcorp"},
			}},
			false,
		},
		{"empty all is vacuously true", models.JSONMap{"all": []interface{}{}}, true},
		{"empty any never matches", models.JSONMap{"any": []interface{}{}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, failures := engine.Compile(context.Background(), []*models.Rule{
				{ID: "rule_1", Enabled: true, Conditions: tc.conditions},
			})
			require.Empty(t, failures)

			result := engine.Evaluate(context.Background(), set, message)
			assert.Equal(t, tc.matched, result.Matched())
		})
	}
}

func TestEvaluate_AccumulatesActionsInOrder(t *testing.T) {
	engine := NewEngine(nil)

	set, failures := engine.Compile(context.Background(), []*models.Rule{
		{
			ID:         "rule_vip",
			Enabled:    true,
			Conditions: leaf("from", "contains", "bigcorp"),
			Actions: models.JSONArray{
				map[string]interface{}{"type": "setPriority", "value": "HIGH"},
				map[string]interface{}{"type": "addLabels", "labels": []interface{}{"vip"}},
			},
		},
		{
			ID:         "rule_urgent",
			Enabled:    true,
			Conditions: leaf("subject", "contains", "urgent"),
			Actions: models.JSONArray{
				map[string]interface{}{"type": "assignTo", "userId": "user_oncall"},
			},
		},
	})
	require.Empty(t, failures)

	result := engine.Evaluate(context.Background(), set, newMessage())

	assert.Equal(t, []string{"rule_vip", "rule_urgent"}, result.MatchedRuleIDs)
	require.Len(t, result.Actions, 3)
	assert.Equal(t, enum.ActionSetPriority, result.Actions[0].Type)
	assert.Equal(t, enum.TaskPriorityHigh, result.Actions[0].Priority)
	assert.Equal(t, enum.ActionAddLabels, result.Actions[1].Type)
	assert.Equal(t, enum.ActionAssignTo, result.Actions[2].Type)
}

func TestEvaluate_StopOnMatchHaltsTheWalk(t *testing.T) {
	engine := NewEngine(nil)

	set, failures := engine.Compile(context.Background(), []*models.Rule{
		{
			ID:          "rule_first",
			Enabled:     true,
			StopOnMatch: true,
			Conditions:  leaf("subject", "contains", "urgent"),
			Actions: models.JSONArray{
				map[string]interface{}{"type": "setPriority", "value": "URGENT"},
			},
		},
		{
			ID:         "rule_second",
			Enabled:    true,
			Conditions: leaf("subject", "contains", "urgent"),
			Actions: models.JSONArray{
				map[string]interface{}{"type": "addLabels", "labels": []interface{}{"late"}},
			},
		},
	})
	require.Empty(t, failures)

	result := engine.Evaluate(context.Background(), set, newMessage())

	assert.Equal(t, []string{"rule_first"}, result.MatchedRuleIDs)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, enum.ActionSetPriority, result.Actions[0].Type)
}

func TestParseConditions_RejectsAmbiguousShapes(t *testing.T) {
	cases := []struct {
		name       string
		conditions models.JSONMap
	}{
		{"empty", models.JSONMap{}},
		{"leaf and combinator", models.JSONMap{
			"field": "subject", "operator": "contains", "value": "x",
			"any": []interface{}{},
		}},
		{"leaf without operator", models.JSONMap{"field": "subject"}},
		{"unknown key", models.JSONMap{"nor": []interface{}{}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConditions(tc.conditions)
			assert.Error(t, err)
		})
	}
}

func TestCompileActions_CreateTaskOverrides(t *testing.T) {
	engine := NewEngine(nil)

	set, failures := engine.Compile(context.Background(), []*models.Rule{
		{
			ID:         "rule_bug",
			Enabled:    true,
			Conditions: leaf("subject", "contains", "urgent"),
			Actions: models.JSONArray{
				map[string]interface{}{
					"type":    "createTask",
					"enabled": true,
					"overrides": map[string]interface{}{
						"title":    "Production incident",
						"taskType": "BUG",
					},
				},
			},
		},
	})
	require.Empty(t, failures)
	require.Len(t, set.Rules, 1)

	action := set.Rules[0].Actions[0]
	assert.Equal(t, enum.ActionCreateTask, action.Type)
	assert.True(t, action.CreateTask)
	assert.Equal(t, "Production incident", action.Overrides.Title)
	assert.Equal(t, enum.TaskType("BUG"), action.Overrides.TaskType)
}
