package ingestion

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/taskwell/mailroom/dto"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/services/executor"
	"github.com/taskwell/mailroom/services/normalizer"
	"github.com/taskwell/mailroom/services/rules"
)

// Pipeline drives one message through fetch → normalize → dedup → match →
// execute → acknowledge. Every stage transition is persisted on the
// ingestion record, so a crash resumes at the recorded stage instead of
// replaying completed side effects.
type Pipeline struct {
	log         logger.Logger
	repos       *repository.Repositories
	engine      *rules.Engine
	executor    *executor.Executor
	events      interfaces.EventPublisher
	maxAttempts int
}

func NewPipeline(
	log logger.Logger,
	repos *repository.Repositories,
	engine *rules.Engine,
	exec *executor.Executor,
	events interfaces.EventPublisher,
	maxAttempts int,
) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		log:         log,
		repos:       repos,
		engine:      engine,
		executor:    exec,
		events:      events,
		maxAttempts: maxAttempts,
	}
}

// ProcessMessage runs one raw message through the pipeline. It returns the
// error that left the record in FAILED, or nil when the message reached a
// terminal state (including dedup no-ops).
func (p *Pipeline) ProcessMessage(ctx context.Context, snap *Snapshot, conn interfaces.IMAPConnection, raw *interfaces.RawMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Pipeline.ProcessMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, snap.Inbox.ID)
	span.SetTag("uid", raw.UID)

	message, err := normalizer.Normalize(ctx, snap.Inbox.ID, raw)
	if err != nil {
		// Unparseable mail still needs a durable record, keyed by its UID, so
		// the cycle does not refetch it forever.
		p.recordUnparseable(ctx, snap.Inbox, raw, err)
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("message.id", message.MessageID)

	record, err := p.repos.IngestionRecordRepository.GetRecord(ctx, snap.Inbox.ID, message.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if record != nil && record.Terminal(p.maxAttempts) {
		// DedupConflict: already processed (or parked after exhausting
		// retries). Acknowledge so the watermark moves past it.
		span.SetTag("dedup", true)
		return p.acknowledge(ctx, snap, conn, raw.UID, record)
	}

	if record == nil {
		record = &models.IngestionRecord{
			InboxID:            snap.Inbox.ID,
			MessageID:          message.MessageID,
			ImapUID:            raw.UID,
			SyntheticMessageID: message.SyntheticID,
			Status:             enum.IngestionProcessing,
			Stage:              enum.StageFetched,
		}
		if err := p.repos.IngestionRecordRepository.CreateRecord(ctx, record); err != nil {
			// A concurrent insert means another worker holds the message.
			tracing.TraceErr(span, err)
			return err
		}
	} else {
		record.Status = enum.IngestionProcessing
	}

	if err := p.advance(ctx, record, enum.StageNormalized); err != nil {
		return p.fail(ctx, snap, record, err)
	}

	match := p.engine.Evaluate(ctx, snap.RuleSet, message)
	record.MatchedRuleIDs = match.MatchedRuleIDs

	if !match.Matched() {
		// No rule claimed the message; it stays in the mailbox unconverted.
		// AutoCreateTask only decides the default for matched rules that carry
		// no explicit createTask action.
		record.Status = enum.IngestionSkipped
		if err := p.advance(ctx, record, enum.StageMatched); err != nil {
			return p.fail(ctx, snap, record, err)
		}
		return p.acknowledge(ctx, snap, conn, raw.UID, record)
	}

	if err := p.advance(ctx, record, enum.StageMatched); err != nil {
		return p.fail(ctx, snap, record, err)
	}

	if err := p.executor.Execute(ctx, snap.Inbox, message, record, match); err != nil {
		return p.fail(ctx, snap, record, err)
	}
	if err := p.advance(ctx, record, enum.StageExecuted); err != nil {
		return p.fail(ctx, snap, record, err)
	}

	record.Status = enum.IngestionProcessed
	if err := p.acknowledge(ctx, snap, conn, raw.UID, record); err != nil {
		return p.fail(ctx, snap, record, err)
	}
	return nil
}

// advance persists a completed stage transition.
func (p *Pipeline) advance(ctx context.Context, record *models.IngestionRecord, stage enum.IngestionStage) error {
	record.Stage = stage
	return p.repos.IngestionRecordRepository.UpdateRecord(ctx, record)
}

// acknowledge flags the message on the server and moves the durable UID
// watermark forward. It is the commit point of the pipeline: only after it
// succeeds is the message safe from refetching.
func (p *Pipeline) acknowledge(ctx context.Context, snap *Snapshot, conn interfaces.IMAPConnection, uid uint32, record *models.IngestionRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Pipeline.acknowledge")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("uid", uid)

	if err := conn.Acknowledge(ctx, snap.Inbox.Folder, uid); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	state := &models.InboxSyncState{
		InboxID:    snap.Inbox.ID,
		FolderName: snap.Inbox.Folder,
		LastUID:    uid,
	}
	if err := p.repos.SyncStateRepository.SaveSyncState(ctx, state); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if record.Status == enum.IngestionProcessing {
		record.Status = enum.IngestionProcessed
	}
	if record.Stage != enum.StageAcknowledged {
		if err := p.advance(ctx, record, enum.StageAcknowledged); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}

// fail records the failure against the stage the record already completed;
// the next cycle resumes from there. Exhausting the attempt budget parks the
// record and raises an operational alert.
func (p *Pipeline) fail(ctx context.Context, snap *Snapshot, record *models.IngestionRecord, cause error) error {
	record.Status = enum.IngestionFailed
	record.Attempts++
	record.LastError = cause.Error()

	if err := p.repos.IngestionRecordRepository.UpdateRecord(ctx, record); err != nil {
		p.log.Errorf("inbox %s: failed to persist failure for record %s: %v", snap.Inbox.ID, record.ID, err)
	}

	if record.Attempts >= p.maxAttempts && p.events != nil {
		alert := dto.IngestionFailed{
			InboxID:   snap.Inbox.ID,
			MessageID: record.MessageID,
			Stage:     string(record.Stage),
			Attempts:  record.Attempts,
			LastError: record.LastError,
		}
		if err := p.events.PublishEvent(ctx, record.ID, enum.EMAIL, dto.EventIngestionFailed, alert); err != nil {
			p.log.Warnf("inbox %s: failed to publish ingestion alert: %v", snap.Inbox.ID, err)
		}
	}

	return cause
}

// recordUnparseable parks a message whose MIME structure cannot be decoded.
func (p *Pipeline) recordUnparseable(ctx context.Context, inbox *models.Inbox, raw *interfaces.RawMessage, cause error) {
	messageID := fmt.Sprintf("unparseable-%s-%d", raw.Folder, raw.UID)

	record, err := p.repos.IngestionRecordRepository.GetRecord(ctx, inbox.ID, messageID)
	if err != nil {
		p.log.Errorf("inbox %s: failed to look up record for unparseable uid %d: %v", inbox.ID, raw.UID, err)
		return
	}
	if record == nil {
		record = &models.IngestionRecord{
			InboxID:            inbox.ID,
			MessageID:          messageID,
			ImapUID:            raw.UID,
			SyntheticMessageID: true,
			Status:             enum.IngestionFailed,
			Stage:              enum.StageFetched,
			Attempts:           1,
			LastError:          cause.Error(),
		}
		if err := p.repos.IngestionRecordRepository.CreateRecord(ctx, record); err != nil {
			p.log.Errorf("inbox %s: failed to create record for unparseable uid %d: %v", inbox.ID, raw.UID, err)
		}
		return
	}

	record.Status = enum.IngestionFailed
	record.Attempts++
	record.LastError = cause.Error()
	if err := p.repos.IngestionRecordRepository.UpdateRecord(ctx, record); err != nil {
		p.log.Errorf("inbox %s: failed to update record for unparseable uid %d: %v", inbox.ID, raw.UID, err)
	}
}
