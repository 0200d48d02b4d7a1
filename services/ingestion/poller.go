package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"github.com/taskwell/mailroom/config"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/internal/utils"
	"github.com/taskwell/mailroom/services/rules"
)

// Poller schedules poll cycles across all registered inboxes. Inboxes poll in
// parallel through a bounded worker pool; within one inbox a cycle is a
// single sequential unit guarded by a durable lease, so two poller instances
// never process the same inbox concurrently.
type Poller struct {
	log        logger.Logger
	cfg        *config.EngineConfig
	repos      *repository.Repositories
	imapClient interfaces.IMAPClient
	engine     *rules.Engine
	pipeline   *Pipeline

	// owner identifies this poller instance on inbox leases.
	owner     string
	pollSlots chan struct{}
	wg        sync.WaitGroup

	statusMutex sync.RWMutex
	statuses    map[string]interfaces.InboxStatus
}

func NewPoller(
	log logger.Logger,
	cfg *config.EngineConfig,
	repos *repository.Repositories,
	imapClient interfaces.IMAPClient,
	engine *rules.Engine,
	pipeline *Pipeline,
) *Poller {
	workers := cfg.PollWorkers
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		log:        log,
		cfg:        cfg,
		repos:      repos,
		imapClient: imapClient,
		engine:     engine,
		pipeline:   pipeline,
		owner:      uuid.New().String(),
		pollSlots:  make(chan struct{}, workers),
		statuses:   make(map[string]interfaces.InboxStatus),
	}
}

// Tick polls every inbox whose interval has elapsed. It returns once all due
// cycles have been dispatched; cycles themselves run on the pool.
func (p *Poller) Tick(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "Poller.Tick")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	inboxes, err := p.repos.InboxRepository.GetInboxes(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("failed to list inboxes: %v", err)
		return
	}

	now := utils.Now()
	for _, inbox := range inboxes {
		if !pollDue(inbox, now) {
			continue
		}

		select {
		case p.pollSlots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		p.wg.Add(1)
		go func(inboxID string) {
			defer p.wg.Done()
			defer func() { <-p.pollSlots }()
			defer tracing.RecoverAndLogToJaeger(p.log)
			p.pollInbox(ctx, inboxID)
		}(inbox.ID)
	}
}

// Wait blocks until all in-flight cycles finish; used on shutdown so no
// action is left half-applied.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func pollDue(inbox *models.Inbox, now time.Time) bool {
	if inbox.LastPolledAt == nil {
		return true
	}
	interval := time.Duration(inbox.PollIntervalSeconds) * time.Second
	return now.Sub(*inbox.LastPolledAt) >= interval
}

// pollInbox runs one cycle: lease, snapshot, fetch, then sequential
// processing in ascending UID order. A message failure ends the cycle at
// that message so the watermark never jumps past unprocessed mail; the next
// cycle refetches from the watermark and retries it.
func (p *Poller) pollInbox(ctx context.Context, inboxID string) {
	span, ctx := tracing.StartTracerSpan(ctx, "Poller.pollInbox")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagInbox(span, inboxID)

	leaseTTL := time.Duration(p.cfg.LeaseTTLSeconds) * time.Second
	if err := p.repos.LeaseRepository.AcquireLease(ctx, inboxID, p.owner, leaseTTL); err != nil {
		if err == er.ErrLeaseHeld {
			span.SetTag("lease.held", true)
			return
		}
		tracing.TraceErr(span, err)
		p.log.Errorf("inbox %s: failed to acquire lease: %v", inboxID, err)
		return
	}
	defer func() {
		if err := p.repos.LeaseRepository.ReleaseLease(context.Background(), inboxID, p.owner); err != nil {
			p.log.Warnf("inbox %s: failed to release lease: %v", inboxID, err)
		}
	}()

	snap, err := loadSnapshot(ctx, p.repos, p.engine, inboxID)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("inbox %s: failed to load snapshot: %v", inboxID, err)
		return
	}

	err = p.runCycleWithBackoff(ctx, snap)

	switch {
	case err == nil:
		p.setConnected(ctx, snap.Inbox, "")
	case er.IsFatalForCycle(err):
		// Bad credentials or TLS policy violations must reach the
		// configuration owner; retrying would only lock the account.
		tracing.TraceErr(span, err)
		p.log.Errorf("inbox %s: cycle aborted: %v", inboxID, err)
		p.setDisconnected(ctx, snap.Inbox, err)
	default:
		tracing.TraceErr(span, err)
		p.log.Warnf("inbox %s: cycle ended with error: %v", inboxID, err)
		p.setDisconnected(ctx, snap.Inbox, err)
	}

	if err := p.repos.InboxRepository.UpdateLastPolledAt(ctx, inboxID, utils.Now()); err != nil {
		p.log.Warnf("inbox %s: failed to stamp poll time: %v", inboxID, err)
	}
}

// runCycleWithBackoff retries the cycle on transient network errors with
// exponential backoff, bounded by the attempt budget. Fatal errors (auth,
// TLS) abort immediately.
func (p *Poller) runCycleWithBackoff(ctx context.Context, snap *Snapshot) error {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		lastErr = p.runCycle(ctx, snap)
		if lastErr == nil || er.IsFatalForCycle(lastErr) || !er.IsTransient(lastErr) {
			return lastErr
		}

		p.log.Warnf("inbox %s: transient error on attempt %d: %v", snap.Inbox.ID, attempt+1, lastErr)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}

func (p *Poller) runCycle(ctx context.Context, snap *Snapshot) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.runCycle")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, snap.Inbox.ID)

	conn, err := p.imapClient.Connect(ctx, snap.Inbox)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	sinceUID := uint32(0)
	state, err := p.repos.SyncStateRepository.GetSyncState(ctx, snap.Inbox.ID, snap.Inbox.Folder)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if state != nil {
		sinceUID = state.LastUID
	}
	span.SetTag("since.uid", sinceUID)

	fetched, err := conn.FetchSince(ctx, snap.Inbox.Folder, sinceUID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if p.cfg.FetchBatchSize > 0 && len(fetched) > p.cfg.FetchBatchSize {
		fetched = fetched[:p.cfg.FetchBatchSize]
	}
	span.SetTag("fetched.count", len(fetched))

	processed := 0
	for _, raw := range fetched {
		if err := p.pipeline.ProcessMessage(ctx, snap, conn, raw); err != nil {
			span.SetTag("processed.count", processed)
			return err
		}
		processed++
		p.recordProgress(snap.Inbox.ID, raw.UID)

		// The acknowledgment boundary is the only safe cancellation point.
		select {
		case <-ctx.Done():
			span.SetTag("processed.count", processed)
			return ctx.Err()
		default:
		}
	}

	span.SetTag("processed.count", processed)
	return nil
}

func (p *Poller) recordProgress(inboxID string, uid uint32) {
	p.statusMutex.Lock()
	defer p.statusMutex.Unlock()
	status := p.statuses[inboxID]
	status.LastUID = uid
	p.statuses[inboxID] = status
}

func (p *Poller) setConnected(ctx context.Context, inbox *models.Inbox, message string) {
	if err := p.repos.InboxRepository.UpdateConnectionStatus(ctx, inbox.ID, enum.ConnectionActive, message); err != nil {
		p.log.Warnf("inbox %s: failed to update connection status: %v", inbox.ID, err)
	}
	p.setStatus(inbox.ID, true, message)
}

func (p *Poller) setDisconnected(ctx context.Context, inbox *models.Inbox, cause error) {
	if err := p.repos.InboxRepository.UpdateConnectionStatus(ctx, inbox.ID, enum.ConnectionNotActive, cause.Error()); err != nil {
		p.log.Warnf("inbox %s: failed to update connection status: %v", inbox.ID, err)
	}
	p.setStatus(inbox.ID, false, cause.Error())
}

func (p *Poller) setStatus(inboxID string, connected bool, lastError string) {
	now := utils.Now()
	p.statusMutex.Lock()
	defer p.statusMutex.Unlock()
	status := p.statuses[inboxID]
	status.Connected = connected
	status.LastError = lastError
	status.LastPolledAt = &now
	p.statuses[inboxID] = status
}

// Status returns a copy of the operational view for the status endpoint.
func (p *Poller) Status() map[string]interfaces.InboxStatus {
	p.statusMutex.RLock()
	defer p.statusMutex.RUnlock()
	snapshot := make(map[string]interfaces.InboxStatus, len(p.statuses))
	for id, status := range p.statuses {
		snapshot[id] = status
	}
	return snapshot
}
