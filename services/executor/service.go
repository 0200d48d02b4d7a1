package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/dto"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/internal/utils"
	"github.com/taskwell/mailroom/services/rules"
)

// Executor applies a matched rule's actions to the task derived from a
// message. Actions are independent side effects: one failing leaves the
// others applied, with the failure recorded on the ingestion record.
type Executor struct {
	log            logger.Logger
	taskRepo       interfaces.TaskRepository
	recordRepo     interfaces.IngestionRecordRepository
	templateRepo   interfaces.ReplyTemplateRepository
	smtpClient     interfaces.SMTPClient
	eventPublisher interfaces.EventPublisher
	replySlots     chan struct{}
}

func NewExecutor(
	log logger.Logger,
	taskRepo interfaces.TaskRepository,
	recordRepo interfaces.IngestionRecordRepository,
	templateRepo interfaces.ReplyTemplateRepository,
	smtpClient interfaces.SMTPClient,
	eventPublisher interfaces.EventPublisher,
	replyWorkers int,
) *Executor {
	if replyWorkers < 1 {
		replyWorkers = 1
	}
	return &Executor{
		log:            log,
		taskRepo:       taskRepo,
		recordRepo:     recordRepo,
		templateRepo:   templateRepo,
		smtpClient:     smtpClient,
		eventPublisher: eventPublisher,
		replySlots:     make(chan struct{}, replyWorkers),
	}
}

// Execute applies the matched actions in list order. It returns the first
// action error, after attempting every remaining action; the caller decides
// whether the record retries.
func (e *Executor) Execute(
	ctx context.Context,
	inbox *models.Inbox,
	message *models.InboundMessage,
	record *models.IngestionRecord,
	match *rules.MatchResult,
) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Executor.Execute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inbox.ID)
	span.SetTag("message.id", message.MessageID)
	span.SetTag("actions.count", len(match.Actions))

	draft := e.buildDraft(ctx, inbox, message, record)
	if draft == nil && !e.shouldCreateTask(inbox, match) {
		// Nothing to materialize and no task to update; only auto-replies can
		// still apply.
		return e.applyAutoReplies(ctx, inbox, message, record, match)
	}

	if draft == nil {
		draft = e.newTaskDraft(inbox, message)
	}

	// Fold the mutating actions into the draft in list order. assignTo is
	// last-writer-wins; addLabels is a set union.
	for _, action := range match.Actions {
		switch action.Type {
		case enum.ActionSetPriority:
			draft.Priority = action.Priority
		case enum.ActionAssignTo:
			draft.AssigneeID = action.AssigneeID
		case enum.ActionAddLabels:
			draft.Labels = utils.UnionStrings(draft.Labels, action.Labels)
		case enum.ActionCreateTask:
			if action.Overrides.Title != "" {
				draft.Title = action.Overrides.Title
			}
			if action.Overrides.TaskType != "" {
				draft.TaskType = action.Overrides.TaskType
			}
			if action.Overrides.StatusID != "" {
				draft.StatusID = action.Overrides.StatusID
			}
		}
	}

	var firstErr error
	if err := e.persistTask(ctx, inbox, message, record, draft); err != nil {
		firstErr = err
	}

	if err := e.applyAutoReplies(ctx, inbox, message, record, match); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		tracing.TraceErr(span, firstErr)
	}
	return firstErr
}

// buildDraft reloads the already-created task when a retry re-enters
// execution, so a crash between task creation and acknowledgment never
// duplicates the task.
func (e *Executor) buildDraft(ctx context.Context, inbox *models.Inbox, message *models.InboundMessage, record *models.IngestionRecord) *models.Task {
	if record.CreatedTaskID == "" {
		return nil
	}
	task, err := e.taskRepo.GetTask(ctx, record.CreatedTaskID)
	if err != nil || task == nil {
		e.log.Warnf("inbox %s: task %s referenced by record %s not found", inbox.ID, record.CreatedTaskID, record.ID)
		return nil
	}
	return task
}

func (e *Executor) shouldCreateTask(inbox *models.Inbox, match *rules.MatchResult) bool {
	create := inbox.AutoCreateTask
	for _, action := range match.Actions {
		if action.Type == enum.ActionCreateTask {
			create = action.CreateTask
		}
	}
	return create
}

func (e *Executor) newTaskDraft(inbox *models.Inbox, message *models.InboundMessage) *models.Task {
	title := strings.TrimSpace(message.Subject)
	if title == "" {
		title = fmt.Sprintf("Email from %s", message.From)
	}
	return &models.Task{
		OrganizationID:  inbox.OrganizationID,
		ProjectID:       inbox.ProjectID,
		Title:           title,
		Description:     message.BodyText,
		TaskType:        inbox.DefaultTaskType,
		Priority:        inbox.DefaultPriority,
		StatusID:        inbox.DefaultStatusID,
		AssigneeID:      inbox.DefaultAssigneeID,
		SourceInboxID:   inbox.ID,
		SourceMessageID: message.MessageID,
	}
}

func (e *Executor) persistTask(ctx context.Context, inbox *models.Inbox, message *models.InboundMessage, record *models.IngestionRecord, draft *models.Task) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Executor.persistTask")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if draft.ID != "" {
		if err := e.taskRepo.UpdateTask(ctx, draft); err != nil {
			err = er.ActionError(err, "failed to update task")
			tracing.TraceErr(span, err)
			return err
		}
		e.publish(ctx, draft.ID, dto.EventTaskUpdated, dto.TaskUpdated{
			TaskID:          draft.ID,
			SourceInboxID:   inbox.ID,
			SourceMessageID: message.MessageID,
			Priority:        string(draft.Priority),
			AssigneeID:      draft.AssigneeID,
			Labels:          draft.Labels,
		})
		return nil
	}

	if err := e.taskRepo.CreateTask(ctx, draft); err != nil {
		err = er.ActionError(err, "failed to create task")
		tracing.TraceErr(span, err)
		return err
	}
	record.CreatedTaskID = draft.ID
	tracing.TagEntity(span, draft.ID)

	e.publish(ctx, draft.ID, dto.EventTaskCreated, dto.TaskCreated{
		TaskID:          draft.ID,
		OrganizationID:  draft.OrganizationID,
		ProjectID:       draft.ProjectID,
		SourceInboxID:   inbox.ID,
		SourceMessageID: message.MessageID,
		Title:           draft.Title,
		Priority:        string(draft.Priority),
		AssigneeID:      draft.AssigneeID,
		Labels:          draft.Labels,
		CreatedAt:       draft.CreatedAt,
	})
	return nil
}

func (e *Executor) publish(ctx context.Context, entityID, eventType string, payload any) {
	if e.eventPublisher == nil {
		return
	}
	if err := e.eventPublisher.PublishEvent(ctx, entityID, enum.TASK, eventType, payload); err != nil {
		e.log.Warnf("failed to publish %s for %s: %v", eventType, entityID, err)
	}
}

// applyAutoReplies sends at most one reply per message, regardless of how
// many matched rules requested one. The ingestion record holds the
// at-most-once claim, so a retried message never re-sends.
func (e *Executor) applyAutoReplies(ctx context.Context, inbox *models.Inbox, message *models.InboundMessage, record *models.IngestionRecord, match *rules.MatchResult) error {
	var templateID string
	for _, action := range match.Actions {
		if action.Type == enum.ActionAutoReply {
			templateID = action.TemplateID
			break
		}
	}
	if templateID == "" {
		return nil
	}

	claimed, err := e.recordRepo.ClaimAutoReply(ctx, record.ID)
	if err != nil {
		return er.ActionError(err, "failed to claim auto-reply")
	}
	if !claimed {
		return nil
	}

	if err := e.sendAutoReply(ctx, inbox, message, record, templateID); err != nil {
		return er.ActionError(errors.Cause(err), "auto-reply failed")
	}
	return nil
}
