package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"redmine-email-connector/internal/correlate"
	"redmine-email-connector/internal/detect"
	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/models"
	"redmine-email-connector/internal/notify"
	"redmine-email-connector/internal/redmine"

	"github.com/google/uuid"
)

// Backend is the ticket-backend contract the orchestrator drives.
// *redmine.Client satisfies it.
type Backend interface {
	CreateIssue(ctx context.Context, draft redmine.IssueDraft) (*redmine.Issue, error)
	GetIssue(ctx context.Context, id int) (*redmine.Issue, error)
	AddNotes(ctx context.Context, id int, notes string) error
	IssueExists(ctx context.Context, id int) (bool, error)
	ListUpdated(ctx context.Context) ([]redmine.Issue, error)
}

// Mailbox is one open support-mailbox session. A fresh session is opened
// per poll cycle and closed when the cycle ends.
type Mailbox interface {
	FetchUnread() ([]models.InboundMessage, error)
	MarkSeen(seqNum uint32) error
	Close() error
}

// Orchestrator drives the two poll loops (inbox scan, Redmine activity
// scan) and serves the two webhook entry points. The watermark is only
// touched from the poll loop, which runs one cycle at a time.
type Orchestrator struct {
	cfg         *models.Config
	backend     Backend
	resolver    *correlate.Resolver
	detector    *detect.Detector
	dispatcher  *notify.Dispatcher
	openMailbox func() (Mailbox, error)

	watermark time.Time
	now       func() time.Time

	mailboxFailures int
	skipInboxTicks  int
}

// New wires an Orchestrator. The watermark starts at "now": activity older
// than process start was either already notified by a previous run or
// predates the connector entirely.
func New(cfg *models.Config, backend Backend, dispatcher *notify.Dispatcher, openMailbox func() (Mailbox, error)) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		backend:     backend,
		resolver:    correlate.NewResolver(backend, cfg.Redmine.DefaultProjectID),
		detector:    detect.NewDetector(backend),
		dispatcher:  dispatcher,
		openMailbox: openMailbox,
		watermark:   time.Now(),
		now:         time.Now,
	}
}

// Run executes both poll loops on one shared ticker until ctx is cancelled.
// A cycle that is already running finishes before the next tick is
// considered; ticks never overlap.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Email.CheckInterval)
	defer ticker.Stop()

	logging.Log.Infof("Sync loops started, polling every %s", o.cfg.Email.CheckInterval)

	o.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("Sync loops stopping")
			return
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	o.pollInbox(ctx)
	o.pollRedmine(ctx)
}

// pollInbox turns every unseen mailbox message into an issue or a comment.
// A message is marked seen only once its backend mutation succeeded; a
// failed message stays unseen and is retried next cycle.
func (o *Orchestrator) pollInbox(ctx context.Context) {
	if o.skipInboxTicks > 0 {
		o.skipInboxTicks--
		return
	}

	session, err := o.openMailbox()
	if err != nil {
		o.handleMailboxFailure(err)
		return
	}
	defer func() { _ = session.Close() }()
	o.mailboxFailures = 0

	messages, err := session.FetchUnread()
	if err != nil {
		logging.Log.Errorf("Error fetching unread messages: %v", err)
		return
	}

	for i := range messages {
		msg := &messages[i]
		locallog := logging.WithTrace(msg.TraceID)
		locallog.Infof("Processing message %d from %s received %s",
			msg.SeqNum, msg.From, msg.InternalDate.Format(time.RFC3339))

		created, err := o.apply(ctx, msg)
		if err != nil {
			locallog.Errorf("Error processing message %d: %v", msg.SeqNum, err)
			continue
		}

		if err := session.MarkSeen(msg.SeqNum); err != nil {
			locallog.Errorf("Error marking message %d as seen: %v", msg.SeqNum, err)
		}

		if created != nil {
			if err := o.dispatcher.IssueCreated(ctx, created.ID, msg.From); err != nil {
				locallog.Errorf("Error sending confirmation for issue #%d: %v", created.ID, err)
			}
		}
	}
}

// apply resolves one inbound message and performs the backend mutation.
// Returns the created issue for the create path, nil for the comment path.
func (o *Orchestrator) apply(ctx context.Context, msg *models.InboundMessage) (*redmine.Issue, error) {
	action, err := o.resolver.Resolve(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch action.Kind {
	case correlate.ActionComment:
		err := o.backend.AddNotes(ctx, action.IssueID, action.Comment)
		if errors.Is(err, redmine.ErrNotFound) {
			// The issue vanished between the existence check and the
			// mutation; fall back to opening a new one.
			logging.WithTrace(msg.TraceID).Warnf("Issue #%d disappeared, creating a new one", action.IssueID)
			return o.createIssue(ctx, msg)
		}
		if err != nil {
			return nil, err
		}
		logging.WithTrace(msg.TraceID).Infof("Added comment from %s to issue #%d", msg.From, action.IssueID)
		return nil, nil

	case correlate.ActionCreate:
		return o.createIssue(ctx, msg)

	default:
		return nil, fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

func (o *Orchestrator) createIssue(ctx context.Context, msg *models.InboundMessage) (*redmine.Issue, error) {
	issue, err := o.backend.CreateIssue(ctx, redmine.IssueDraft{
		ProjectID:    o.cfg.Redmine.DefaultProjectID,
		Subject:      msg.Subject,
		Description:  correlate.FormatDescription(msg.From, msg.BodyText),
		TrackerID:    o.cfg.Redmine.TrackerID,
		StatusID:     o.cfg.Redmine.StatusID,
		PriorityID:   o.cfg.Redmine.PriorityID,
		AssignedToID: o.cfg.Redmine.AssignedToID,
	})
	if err != nil {
		return nil, err
	}
	logging.WithTrace(msg.TraceID).Infof("Created issue #%d from %s", issue.ID, msg.From)
	return issue, nil
}

// pollRedmine scans for journal notes newer than the watermark and mails
// each one to its requester. The watermark moves only after a successful
// scan, so a failed scan re-covers the same window next cycle
// (at-least-once delivery; duplicates are accepted).
func (o *Orchestrator) pollRedmine(ctx context.Context) {
	updates, err := o.detector.Scan(ctx, o.watermark)
	if err != nil {
		logging.Log.Errorf("Error scanning Redmine activity: %v", err)
		return
	}

	for _, u := range updates {
		if err := o.dispatcher.CommentAdded(ctx, u.IssueID, u.Requester, u.Notes, u.Subject); err != nil {
			logging.Log.Errorf("Error notifying %s about issue #%d: %v", u.Requester, u.IssueID, err)
		}
	}

	o.watermark = o.now().Add(-o.cfg.Email.CheckInterval)
}

// HandleIssueUpdated serves the Redmine webhook: notify the requester that
// something changed on their ticket, outside the poll cadence. A missing
// issue or an issue without a requester line is a no-op, not an error.
func (o *Orchestrator) HandleIssueUpdated(ctx context.Context, issueID int) error {
	issue, err := o.backend.GetIssue(ctx, issueID)
	if errors.Is(err, redmine.ErrNotFound) {
		logging.Log.Warnf("Webhook referenced missing issue #%d", issueID)
		return nil
	}
	if err != nil {
		return err
	}

	requester, ok := correlate.ExtractRequester(issue.Description)
	if !ok {
		logging.Log.Infof("Issue #%d has no requester, skipping notification", issueID)
		return nil
	}

	return o.dispatcher.IssueUpdated(ctx, issueID, requester, issue.Subject)
}

// HandleInboundMessage serves the mail-relay webhook: same processing as
// the inbox poll, sourced from a push instead of a pull (no mark-seen).
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	created, err := o.apply(ctx, &msg)
	if err != nil {
		return err
	}

	if created != nil {
		if err := o.dispatcher.IssueCreated(ctx, created.ID, msg.From); err != nil {
			// The issue exists; a lost confirmation is logged, not replayed.
			logging.WithTrace(msg.TraceID).Errorf("Error sending confirmation for issue #%d: %v", created.ID, err)
		}
	}

	return nil
}

// handleMailboxFailure counts consecutive connection failures and, past a
// threshold, skips upcoming inbox polls so a down mail server is not
// hammered every tick.
func (o *Orchestrator) handleMailboxFailure(err error) {
	o.mailboxFailures++
	logging.Log.Errorf("Mailbox connection error: %v", err)

	if o.mailboxFailures >= 5 {
		n := o.mailboxFailures - 5
		if n > 4 {
			n = 4
		}
		o.skipInboxTicks = 1 << n
		logging.Log.Warnf("Mailbox failed %d times, skipping the next %d inbox polls",
			o.mailboxFailures, o.skipInboxTicks)
	}
}
