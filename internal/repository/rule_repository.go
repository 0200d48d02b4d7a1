package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) interfaces.RuleRepository {
	return &ruleRepository{db: db}
}

// GetRulesForInbox returns the inbox's rules in evaluation order: ascending
// priority, with creation time and then ID breaking ties. Disabled rules are
// included so callers can surface them on the status endpoint.
func (r *ruleRepository) GetRulesForInbox(ctx context.Context, inboxID string) ([]*models.Rule, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ruleRepository.GetRulesForInbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", inboxID)

	var rules []*models.Rule
	err := r.db.WithContext(ctx).
		Where("inbox_id = ?", inboxID).
		Order("priority ASC, created_at ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return rules, nil
}

// SaveRule creates or updates a rule
func (r *ruleRepository) SaveRule(ctx context.Context, rule *models.Rule) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ruleRepository.SaveRule")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "rule", rule)

	err := r.db.WithContext(ctx).Save(rule).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SetCompileError disables a rule and records why its conditions failed to
// compile. An empty message re-enables nothing; it only clears the error.
func (r *ruleRepository) SetCompileError(ctx context.Context, ruleID string, message string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ruleRepository.SetCompileError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("rule.id", ruleID)

	updates := map[string]interface{}{
		"compile_error": message,
		"updated_at":    time.Now(),
	}
	if message != "" {
		updates["enabled"] = false
	}

	err := r.db.WithContext(ctx).
		Model(&models.Rule{}).
		Where("id = ?", ruleID).
		Updates(updates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
