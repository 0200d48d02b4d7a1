package ingestion

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/services/rules"
)

// Snapshot is the immutable configuration a poll cycle runs against. Inbox
// or rule changes made mid-cycle take effect on the next cycle only.
type Snapshot struct {
	Inbox   *models.Inbox
	RuleSet *rules.RuleSet
}

// loadSnapshot reads the inbox and its rules and compiles them once for the
// cycle. Rules that fail to compile are disabled in storage with the compile
// error attached, so configuration owners see the problem; the rest of the
// set still runs.
func loadSnapshot(ctx context.Context, repos *repository.Repositories, engine *rules.Engine, inboxID string) (*Snapshot, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestion.loadSnapshot")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inboxID)

	inbox, err := repos.InboxRepository.GetInbox(ctx, inboxID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	ruleRows, err := repos.RuleRepository.GetRulesForInbox(ctx, inboxID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	ruleSet, failures := engine.Compile(ctx, ruleRows)
	for _, failure := range failures {
		if err := repos.RuleRepository.SetCompileError(ctx, failure.RuleID, failure.Err.Error()); err != nil {
			tracing.TraceErr(span, err)
		}
	}

	span.SetTag("rules.compiled", len(ruleSet.Rules))
	span.SetTag("rules.failed", len(failures))
	return &Snapshot{Inbox: inbox, RuleSet: ruleSet}, nil
}
