package ingestion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwell/mailroom/config"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/services/executor"
	"github.com/taskwell/mailroom/services/rules"
)

type fakeInboxRepo struct {
	inboxes      []*models.Inbox
	statuses     map[string]enum.ConnectionStatus
	statusErrors map[string]string
	polledAt     map[string]time.Time
}

func newFakeInboxRepo(inboxes ...*models.Inbox) *fakeInboxRepo {
	return &fakeInboxRepo{
		inboxes:      inboxes,
		statuses:     map[string]enum.ConnectionStatus{},
		statusErrors: map[string]string{},
		polledAt:     map[string]time.Time{},
	}
}

func (r *fakeInboxRepo) GetInboxes(ctx context.Context) ([]*models.Inbox, error) {
	return r.inboxes, nil
}

func (r *fakeInboxRepo) GetInbox(ctx context.Context, id string) (*models.Inbox, error) {
	for _, inbox := range r.inboxes {
		if inbox.ID == id {
			return inbox, nil
		}
	}
	return nil, er.ErrInboxNotFound
}

func (r *fakeInboxRepo) SaveInbox(ctx context.Context, inbox *models.Inbox) error {
	return nil
}

func (r *fakeInboxRepo) DeleteInbox(ctx context.Context, id string) error {
	return nil
}

func (r *fakeInboxRepo) UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error {
	r.statuses[id] = status
	r.statusErrors[id] = errorMessage
	return nil
}

func (r *fakeInboxRepo) UpdateLastPolledAt(ctx context.Context, id string, at time.Time) error {
	r.polledAt[id] = at
	return nil
}

type fakeRuleRepo struct {
	rules         []*models.Rule
	compileErrors map[string]string
}

func newFakeRuleRepo(rules ...*models.Rule) *fakeRuleRepo {
	return &fakeRuleRepo{rules: rules, compileErrors: map[string]string{}}
}

func (r *fakeRuleRepo) GetRulesForInbox(ctx context.Context, inboxID string) ([]*models.Rule, error) {
	return r.rules, nil
}

func (r *fakeRuleRepo) SaveRule(ctx context.Context, rule *models.Rule) error {
	return nil
}

func (r *fakeRuleRepo) SetCompileError(ctx context.Context, ruleID string, message string) error {
	r.compileErrors[ruleID] = message
	return nil
}

type fakeLeaseRepo struct {
	acquireErr error
	acquired   []string
	released   []string
}

func (r *fakeLeaseRepo) AcquireLease(ctx context.Context, inboxID, owner string, ttl time.Duration) error {
	if r.acquireErr != nil {
		return r.acquireErr
	}
	r.acquired = append(r.acquired, inboxID)
	return nil
}

func (r *fakeLeaseRepo) ReleaseLease(ctx context.Context, inboxID, owner string) error {
	r.released = append(r.released, inboxID)
	return nil
}

type fakeIMAPClient struct {
	conn        *fakeConnection
	connectErrs []error
	connects    int
}

func (c *fakeIMAPClient) Connect(ctx context.Context, inbox *models.Inbox) (interfaces.IMAPConnection, error) {
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return c.conn, nil
}

type pollerFixture struct {
	poller     *Poller
	inboxRepo  *fakeInboxRepo
	ruleRepo   *fakeRuleRepo
	leaseRepo  *fakeLeaseRepo
	imapClient *fakeIMAPClient
	recordRepo *fakeRecordRepo
	syncRepo   *fakeSyncStateRepo
	taskRepo   *fakeTaskRepo
}

func newPollerFixture(t *testing.T, inbox *models.Inbox, conn *fakeConnection) *pollerFixture {
	t.Helper()
	log := getLogger()
	engine := rules.NewEngine(nil)

	inboxRepo := newFakeInboxRepo(inbox)
	ruleRepo := newFakeRuleRepo(matchAllRule())
	leaseRepo := &fakeLeaseRepo{}
	recordRepo := newFakeRecordRepo()
	syncRepo := newFakeSyncStateRepo()
	taskRepo := newFakeTaskRepo()
	repos := &repository.Repositories{
		InboxRepository:           inboxRepo,
		RuleRepository:            ruleRepo,
		IngestionRecordRepository: recordRepo,
		SyncStateRepository:       syncRepo,
		LeaseRepository:           leaseRepo,
		TaskRepository:            taskRepo,
		ReplyTemplateRepository:   &fakeTemplateRepo{},
	}

	exec := executor.NewExecutor(log, taskRepo, recordRepo, &fakeTemplateRepo{}, nil, nil, 1)
	pipeline := NewPipeline(log, repos, engine, exec, nil, 3)
	imapClient := &fakeIMAPClient{conn: conn}

	cfg := &config.EngineConfig{
		PollWorkers:     2,
		MaxAttempts:     3,
		LeaseTTLSeconds: 60,
		FetchBatchSize:  100,
	}
	poller := NewPoller(log, cfg, repos, imapClient, engine, pipeline)

	return &pollerFixture{
		poller:     poller,
		inboxRepo:  inboxRepo,
		ruleRepo:   ruleRepo,
		leaseRepo:  leaseRepo,
		imapClient: imapClient,
		recordRepo: recordRepo,
		syncRepo:   syncRepo,
		taskRepo:   taskRepo,
	}
}

func pollerInbox() *models.Inbox {
	return &models.Inbox{
		ID:                  "inbox_1",
		OrganizationID:      "org_1",
		ProjectID:           "proj_1",
		EmailAddress:        "support@taskwell.io",
		Folder:              "INBOX",
		PollIntervalSeconds: 120,
		AutoCreateTask:      true,
		DefaultTaskType:     enum.TaskTypeTask,
		DefaultPriority:     enum.TaskPriorityMedium,
	}
}

func uniqueMail(uid uint32) *interfaces.RawMessage {
	body := fmt.Sprintf("From: alice@example.com\r\n"+
		"To: support@taskwell.io\r\n"+
		"Subject: message %d\r\n"+
		"Message-ID: <m%d@example.com>\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"body %d\r\n", uid, uid, uid)
	return &interfaces.RawMessage{UID: uid, Folder: "INBOX", ReceivedAt: time.Now(), Body: []byte(body)}
}

func TestTick_ProcessesDueInboxInUIDOrder(t *testing.T) {
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5), uniqueMail(9)}}
	f := newPollerFixture(t, pollerInbox(), conn)

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Equal(t, []uint32{5, 9}, conn.acked)
	assert.Equal(t, uint32(9), f.syncRepo.marks["inbox_1|INBOX"])
	assert.Len(t, f.taskRepo.tasks, 2)
	assert.Equal(t, enum.ConnectionActive, f.inboxRepo.statuses["inbox_1"])
	assert.Equal(t, []string{"inbox_1"}, f.leaseRepo.acquired)
	assert.Equal(t, []string{"inbox_1"}, f.leaseRepo.released)
	assert.NotZero(t, f.inboxRepo.polledAt["inbox_1"])

	status := f.poller.Status()["inbox_1"]
	assert.True(t, status.Connected)
	assert.Equal(t, uint32(9), status.LastUID)
}

func TestTick_SkipsInboxWithinPollInterval(t *testing.T) {
	inbox := pollerInbox()
	recent := time.Now().Add(-10 * time.Second)
	inbox.LastPolledAt = &recent
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5)}}
	f := newPollerFixture(t, inbox, conn)

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Zero(t, f.imapClient.connects)
	assert.Empty(t, conn.acked)
}

func TestTick_LeaseHeldByAnotherWorkerIsASilentSkip(t *testing.T) {
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5)}}
	f := newPollerFixture(t, pollerInbox(), conn)
	f.leaseRepo.acquireErr = er.ErrLeaseHeld

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Zero(t, f.imapClient.connects)
	assert.Empty(t, f.leaseRepo.released)
}

func TestPollInbox_AuthFailureAbortsWithoutRetry(t *testing.T) {
	conn := &fakeConnection{}
	f := newPollerFixture(t, pollerInbox(), conn)
	f.imapClient.connectErrs = []error{er.AuthError(errors.New("535 bad credentials"), "IMAP login failed")}

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Equal(t, 1, f.imapClient.connects, "auth failures must not be retried")
	assert.Equal(t, enum.ConnectionNotActive, f.inboxRepo.statuses["inbox_1"])
	assert.Contains(t, f.inboxRepo.statusErrors["inbox_1"], "535 bad credentials")

	status := f.poller.Status()["inbox_1"]
	assert.False(t, status.Connected)
}

func TestPollInbox_TransientFailureRetriesWithinTheCycle(t *testing.T) {
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5)}}
	f := newPollerFixture(t, pollerInbox(), conn)
	f.imapClient.connectErrs = []error{er.NetworkError(errors.New("connection refused"), "dial failed"), nil}

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Equal(t, 2, f.imapClient.connects)
	assert.Equal(t, []uint32{5}, conn.acked)
	assert.Equal(t, enum.ConnectionActive, f.inboxRepo.statuses["inbox_1"])
}

func TestPollInbox_ResumesFromWatermark(t *testing.T) {
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5), uniqueMail(9)}}
	f := newPollerFixture(t, pollerInbox(), conn)
	require.NoError(t, f.syncRepo.SaveSyncState(context.Background(), &models.InboxSyncState{
		InboxID: "inbox_1", FolderName: "INBOX", LastUID: 5,
	}))

	f.poller.Tick(context.Background())
	f.poller.Wait()

	assert.Equal(t, []uint32{9}, conn.acked, "already-acknowledged mail is not refetched")
	assert.Len(t, f.taskRepo.tasks, 1)
}

func TestPollInbox_CancellationStopsAtAckBoundary(t *testing.T) {
	conn := &fakeConnection{fetch: []*interfaces.RawMessage{uniqueMail(5), uniqueMail(9)}}
	f := newPollerFixture(t, pollerInbox(), conn)

	ctx, cancel := context.WithCancel(context.Background())
	conn.onAck = func(uid uint32) {
		if uid == 5 {
			cancel()
		}
	}

	f.poller.Tick(ctx)
	f.poller.Wait()

	// The in-flight message finishes; nothing past the boundary starts.
	assert.Equal(t, []uint32{5}, conn.acked)
	assert.Len(t, f.taskRepo.tasks, 1)
	assert.Equal(t, uint32(5), f.syncRepo.marks["inbox_1|INBOX"])
}

func TestPollDue(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-30 * time.Second)
	stale := now.Add(-5 * time.Minute)

	assert.True(t, pollDue(&models.Inbox{PollIntervalSeconds: 120}, now), "never-polled inbox is due")
	assert.False(t, pollDue(&models.Inbox{PollIntervalSeconds: 120, LastPolledAt: &fresh}, now))
	assert.True(t, pollDue(&models.Inbox{PollIntervalSeconds: 120, LastPolledAt: &stale}, now))
}
