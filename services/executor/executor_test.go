package executor

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/services/rules"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeTaskRepo struct {
	tasks      map[string]*models.Task
	createErr  error
	createdIDs []string
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*models.Task{}}
}

func (r *fakeTaskRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (r *fakeTaskRepo) CreateTask(ctx context.Context, task *models.Task) error {
	if r.createErr != nil {
		return r.createErr
	}
	if task.ID == "" {
		task.ID = "task_" + string(rune('a'+len(r.tasks)))
	}
	copied := *task
	r.tasks[task.ID] = &copied
	r.createdIDs = append(r.createdIDs, task.ID)
	return nil
}

func (r *fakeTaskRepo) UpdateTask(ctx context.Context, task *models.Task) error {
	copied := *task
	r.tasks[task.ID] = &copied
	return nil
}

type fakeRecordRepo struct {
	claimed  map[string]bool
	claimErr error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{claimed: map[string]bool{}}
}

func (r *fakeRecordRepo) GetRecord(ctx context.Context, inboxID, messageID string) (*models.IngestionRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) CreateRecord(ctx context.Context, record *models.IngestionRecord) error {
	return nil
}

func (r *fakeRecordRepo) UpdateRecord(ctx context.Context, record *models.IngestionRecord) error {
	return nil
}

func (r *fakeRecordRepo) ClaimAutoReply(ctx context.Context, recordID string) (bool, error) {
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if r.claimed[recordID] {
		return false, nil
	}
	r.claimed[recordID] = true
	return true, nil
}

func (r *fakeRecordRepo) GetFailedRecords(ctx context.Context, inboxID string, maxAttempts int) ([]*models.IngestionRecord, error) {
	return nil, nil
}

type fakeTemplateRepo struct {
	template *models.ReplyTemplate
}

func (r *fakeTemplateRepo) GetTemplate(ctx context.Context, id string) (*models.ReplyTemplate, error) {
	if r.template == nil {
		return nil, errors.New("template not found")
	}
	return r.template, nil
}

type fakeSMTPClient struct {
	sent    []*interfaces.OutboundMail
	sendErr error
}

func (c *fakeSMTPClient) Send(ctx context.Context, inbox *models.Inbox, mail *interfaces.OutboundMail) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, mail)
	return nil
}

func testInbox() *models.Inbox {
	return &models.Inbox{
		ID:              "inbox_1",
		OrganizationID:  "org_1",
		ProjectID:       "proj_1",
		EmailAddress:    "support@taskwell.io",
		AutoCreateTask:  true,
		DefaultTaskType: enum.TaskTypeTask,
		DefaultPriority: enum.TaskPriorityMedium,
	}
}

func testMessage() *models.InboundMessage {
	return &models.InboundMessage{
		InboxID:   "inbox_1",
		MessageID: "msg-1@bigcorp.com",
		From:      "ceo@bigcorp.com",
		FromName:  "The CEO",
		Subject:   "Login broken",
		BodyText:  "Cannot log in since this morning.",
	}
}

func newTestExecutor(taskRepo *fakeTaskRepo, recordRepo *fakeRecordRepo, templateRepo *fakeTemplateRepo, smtpClient *fakeSMTPClient) *Executor {
	return NewExecutor(getLogger(), taskRepo, recordRepo, templateRepo, smtpClient, nil, 2)
}

func TestExecute_CreatesTaskFromInboxDefaults(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	exec := newTestExecutor(taskRepo, newFakeRecordRepo(), &fakeTemplateRepo{}, &fakeSMTPClient{})
	record := &models.IngestionRecord{ID: "ingest_1"}

	err := exec.Execute(context.Background(), testInbox(), testMessage(), record, &rules.MatchResult{})

	require.NoError(t, err)
	require.Len(t, taskRepo.createdIDs, 1)
	task := taskRepo.tasks[taskRepo.createdIDs[0]]
	assert.Equal(t, "Login broken", task.Title)
	assert.Equal(t, enum.TaskPriorityMedium, task.Priority)
	assert.Equal(t, "inbox_1", task.SourceInboxID)
	assert.Equal(t, "msg-1@bigcorp.com", task.SourceMessageID)
	assert.Equal(t, task.ID, record.CreatedTaskID)
}

func TestExecute_RetryReattachesToExistingTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.tasks["task_existing"] = &models.Task{ID: "task_existing", Title: "Login broken"}
	exec := newTestExecutor(taskRepo, newFakeRecordRepo(), &fakeTemplateRepo{}, &fakeSMTPClient{})
	record := &models.IngestionRecord{ID: "ingest_1", CreatedTaskID: "task_existing"}

	match := &rules.MatchResult{Actions: []*rules.Action{
		{Type: enum.ActionSetPriority, Priority: enum.TaskPriorityUrgent},
	}}
	err := exec.Execute(context.Background(), testInbox(), testMessage(), record, match)

	require.NoError(t, err)
	assert.Empty(t, taskRepo.createdIDs, "a retry must not create a second task")
	assert.Equal(t, enum.TaskPriorityUrgent, taskRepo.tasks["task_existing"].Priority)
}

func TestExecute_ActionFolding(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	exec := newTestExecutor(taskRepo, newFakeRecordRepo(), &fakeTemplateRepo{}, &fakeSMTPClient{})
	record := &models.IngestionRecord{ID: "ingest_1"}

	match := &rules.MatchResult{Actions: []*rules.Action{
		{Type: enum.ActionAssignTo, AssigneeID: "user_first"},
		{Type: enum.ActionAddLabels, Labels: []string{"vip", "email"}},
		{Type: enum.ActionAssignTo, AssigneeID: "user_last"},
		{Type: enum.ActionAddLabels, Labels: []string{"email", "urgent"}},
		{Type: enum.ActionCreateTask, CreateTask: true, Overrides: rules.TaskOverrides{Title: "Escalation", TaskType: "BUG"}},
	}}
	err := exec.Execute(context.Background(), testInbox(), testMessage(), record, match)

	require.NoError(t, err)
	task := taskRepo.tasks[record.CreatedTaskID]
	require.NotNil(t, task)
	assert.Equal(t, "user_last", task.AssigneeID, "assignTo is last-writer-wins")
	assert.Equal(t, []string{"vip", "email", "urgent"}, []string(task.Labels), "addLabels unions without duplicates")
	assert.Equal(t, "Escalation", task.Title)
	assert.Equal(t, enum.TaskType("BUG"), task.TaskType)
}

func TestExecute_CreateTaskDisabledSkipsTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	exec := newTestExecutor(taskRepo, newFakeRecordRepo(), &fakeTemplateRepo{}, &fakeSMTPClient{})
	record := &models.IngestionRecord{ID: "ingest_1"}

	match := &rules.MatchResult{Actions: []*rules.Action{
		{Type: enum.ActionCreateTask, CreateTask: false},
	}}
	err := exec.Execute(context.Background(), testInbox(), testMessage(), record, match)

	require.NoError(t, err)
	assert.Empty(t, taskRepo.createdIDs)
	assert.Empty(t, record.CreatedTaskID)
}

func TestExecute_AutoReplySentAtMostOnce(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	recordRepo := newFakeRecordRepo()
	smtpClient := &fakeSMTPClient{}
	templateRepo := &fakeTemplateRepo{template: &models.ReplyTemplate{
		ID:       "tmpl_1",
		Subject:  "We got it: {{.Subject}}",
		BodyText: "Hi {{.FromName}}, your request is tracked.",
	}}
	exec := newTestExecutor(taskRepo, recordRepo, templateRepo, smtpClient)
	record := &models.IngestionRecord{ID: "ingest_1"}

	match := &rules.MatchResult{Actions: []*rules.Action{
		{Type: enum.ActionAutoReply, TemplateID: "tmpl_1"},
	}}

	require.NoError(t, exec.Execute(context.Background(), testInbox(), testMessage(), record, match))
	// A retry of the same record must not send again.
	require.NoError(t, exec.Execute(context.Background(), testInbox(), testMessage(), record, match))

	require.Len(t, smtpClient.sent, 1)
	mail := smtpClient.sent[0]
	assert.Equal(t, []string{"ceo@bigcorp.com"}, mail.To)
	assert.Equal(t, "We got it: Login broken", mail.Subject)
	assert.Equal(t, "Hi The CEO, your request is tracked.", mail.BodyText)
	assert.Equal(t, "msg-1@bigcorp.com", mail.InReplyTo)
}

func TestExecute_AutoReplyFailureDoesNotUndoTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	smtpClient := &fakeSMTPClient{sendErr: errors.New("connection refused")}
	templateRepo := &fakeTemplateRepo{template: &models.ReplyTemplate{ID: "tmpl_1", Subject: "", BodyText: "ack"}}
	exec := newTestExecutor(taskRepo, newFakeRecordRepo(), templateRepo, smtpClient)
	record := &models.IngestionRecord{ID: "ingest_1"}

	match := &rules.MatchResult{Actions: []*rules.Action{
		{Type: enum.ActionAutoReply, TemplateID: "tmpl_1"},
	}}
	err := exec.Execute(context.Background(), testInbox(), testMessage(), record, match)

	assert.Error(t, err)
	assert.Len(t, taskRepo.createdIDs, 1, "the task create stands even when the reply fails")
}
