package sync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/models"
	"redmine-email-connector/internal/notify"
	"redmine-email-connector/internal/redmine"
)

type createCall struct {
	Draft redmine.IssueDraft
}

type notesCall struct {
	IssueID int
	Notes   string
}

type fakeBackend struct {
	nextID  int
	issues  map[int]*redmine.Issue
	updated []redmine.Issue

	creates   []createCall
	notes     []notesCall
	createErr error
	notesErr  map[int]error
	listErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 100, issues: map[int]*redmine.Issue{}}
}

func (f *fakeBackend) CreateIssue(_ context.Context, draft redmine.IssueDraft) (*redmine.Issue, error) {
	f.creates = append(f.creates, createCall{Draft: draft})
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	issue := &redmine.Issue{
		ID:          f.nextID,
		Subject:     draft.Subject,
		Description: draft.Description,
	}
	f.issues[issue.ID] = issue
	return issue, nil
}

func (f *fakeBackend) GetIssue(_ context.Context, id int) (*redmine.Issue, error) {
	issue, ok := f.issues[id]
	if !ok {
		return nil, redmine.ErrNotFound
	}
	return issue, nil
}

func (f *fakeBackend) AddNotes(_ context.Context, id int, notes string) error {
	if err := f.notesErr[id]; err != nil {
		return err
	}
	if _, ok := f.issues[id]; !ok {
		return redmine.ErrNotFound
	}
	f.notes = append(f.notes, notesCall{IssueID: id, Notes: notes})
	return nil
}

func (f *fakeBackend) IssueExists(ctx context.Context, id int) (bool, error) {
	_, err := f.GetIssue(ctx, id)
	if errors.Is(err, redmine.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeBackend) ListUpdated(context.Context) ([]redmine.Issue, error) {
	return f.updated, f.listErr
}

type fakeMailbox struct {
	messages []models.InboundMessage
	fetchErr error
	seen     []uint32
	closed   bool
}

func (f *fakeMailbox) FetchUnread() ([]models.InboundMessage, error) {
	return f.messages, f.fetchErr
}

func (f *fakeMailbox) MarkSeen(seqNum uint32) error {
	f.seen = append(f.seen, seqNum)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	sent []sentMail
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string, _ []string) error {
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func testConfig() *models.Config {
	return &models.Config{
		Redmine: models.RedmineConfig{
			URL:              "https://redmine.test",
			DefaultProjectID: 3,
		},
		Email: models.EmailConfig{
			CheckInterval: 5 * time.Minute,
		},
	}
}

func newTestOrchestrator(backend *fakeBackend, mailbox *fakeMailbox, sender *fakeSender) *Orchestrator {
	open := func() (Mailbox, error) { return mailbox, nil }
	if mailbox == nil {
		open = func() (Mailbox, error) { return nil, errors.New("mailbox down") }
	}
	return New(testConfig(), backend, notify.NewDispatcher(sender), open)
}

func TestPollInboxCreatesIssue(t *testing.T) {
	backend := newFakeBackend()
	sender := &fakeSender{}
	mailbox := &fakeMailbox{
		messages: []models.InboundMessage{{
			SeqNum:   9,
			From:     "a@b.com",
			Subject:  "Need help",
			BodyText: "it's broken",
			TraceID:  "t1",
		}},
	}

	o := newTestOrchestrator(backend, mailbox, sender)
	o.pollInbox(context.Background())

	if len(backend.creates) != 1 {
		t.Fatalf("Expected exactly one createIssue call, got %d", len(backend.creates))
	}
	draft := backend.creates[0].Draft
	if draft.Description != "De: a@b.com\n\nit's broken" {
		t.Errorf("Description = %q", draft.Description)
	}
	if draft.ProjectID != 3 {
		t.Errorf("ProjectID = %d, want 3", draft.ProjectID)
	}

	if len(mailbox.seen) != 1 || mailbox.seen[0] != 9 {
		t.Errorf("Message should be marked seen, got %v", mailbox.seen)
	}
	if !mailbox.closed {
		t.Error("Session should be closed after the cycle")
	}

	if len(sender.sent) != 1 {
		t.Fatalf("Expected one confirmation mail, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "a@b.com" {
		t.Errorf("Confirmation sent to %q", sender.sent[0].To)
	}
	if !strings.Contains(sender.sent[0].Subject, "[Redmine #101]") {
		t.Errorf("Confirmation subject should embed the new tag, got %q", sender.sent[0].Subject)
	}
}

func TestPollInboxAddsComment(t *testing.T) {
	backend := newFakeBackend()
	backend.issues[7] = &redmine.Issue{ID: 7, Subject: "help"}
	sender := &fakeSender{}
	mailbox := &fakeMailbox{
		messages: []models.InboundMessage{{
			SeqNum:   4,
			From:     "a@b.com",
			Subject:  "[Redmine #7] thanks",
			BodyText: "works now",
			TraceID:  "t2",
		}},
	}

	o := newTestOrchestrator(backend, mailbox, sender)
	o.pollInbox(context.Background())

	if len(backend.creates) != 0 {
		t.Errorf("No issue should be created, got %d", len(backend.creates))
	}
	if len(backend.notes) != 1 {
		t.Fatalf("Expected exactly one addNotes call, got %d", len(backend.notes))
	}
	if backend.notes[0].IssueID != 7 {
		t.Errorf("Comment went to issue %d, want 7", backend.notes[0].IssueID)
	}
	if !strings.Contains(backend.notes[0].Notes, "a@b.com") {
		t.Errorf("Comment should name the sender, got %q", backend.notes[0].Notes)
	}
	if !strings.Contains(backend.notes[0].Notes, "works now") {
		t.Errorf("Comment should carry the body, got %q", backend.notes[0].Notes)
	}

	// Confirmation only on creation.
	if len(sender.sent) != 0 {
		t.Errorf("No mail expected on comment-add, got %+v", sender.sent)
	}

	if len(mailbox.seen) != 1 || mailbox.seen[0] != 4 {
		t.Errorf("Message should be marked seen, got %v", mailbox.seen)
	}
}

func TestPollInboxLogsReceiveDate(t *testing.T) {
	var buf bytes.Buffer
	logging.Log.SetOutput(&buf)
	defer logging.Log.SetOutput(os.Stdout)

	received := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	mailbox := &fakeMailbox{
		messages: []models.InboundMessage{{
			SeqNum:       9,
			From:         "a@b.com",
			Subject:      "Need help",
			BodyText:     "it's broken",
			InternalDate: received,
			TraceID:      "t3",
		}},
	}

	o := newTestOrchestrator(newFakeBackend(), mailbox, &fakeSender{})
	o.pollInbox(context.Background())

	// The mailbox receive date of each processed message ends up in the log.
	if !strings.Contains(buf.String(), "2026-08-20T10:00:00Z") {
		t.Errorf("Log should carry the message receive date, got:\n%s", buf.String())
	}
}

func TestPollInboxLeavesFailedMessageUnseen(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = errors.New("redmine down")
	sender := &fakeSender{}
	mailbox := &fakeMailbox{
		messages: []models.InboundMessage{{SeqNum: 9, From: "a@b.com", Subject: "x"}},
	}

	o := newTestOrchestrator(backend, mailbox, sender)
	o.pollInbox(context.Background())

	if len(mailbox.seen) != 0 {
		t.Errorf("Failed message must stay unseen, got %v", mailbox.seen)
	}
	if len(sender.sent) != 0 {
		t.Errorf("No confirmation for a failed creation, got %+v", sender.sent)
	}
}

func TestPollInboxCommentRace(t *testing.T) {
	backend := newFakeBackend()
	backend.issues[7] = &redmine.Issue{ID: 7, Subject: "help"}
	// AddNotes hits a 404 even though the existence check passed.
	backend.notesErr = map[int]error{7: redmine.ErrNotFound}
	sender := &fakeSender{}
	mailbox := &fakeMailbox{
		messages: []models.InboundMessage{{
			SeqNum: 4, From: "a@b.com", Subject: "[Redmine #7] thanks", BodyText: "hi",
		}},
	}

	o := newTestOrchestrator(backend, mailbox, sender)
	o.pollInbox(context.Background())

	// Degrades to a fresh issue instead of dropping the message.
	if len(backend.creates) != 1 {
		t.Fatalf("Expected fallback createIssue, got %d creates", len(backend.creates))
	}
	if len(sender.sent) != 1 {
		t.Errorf("Fallback creation should confirm by mail, got %d", len(sender.sent))
	}
}

func TestPollRedmineAdvancesWatermark(t *testing.T) {
	watermark := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	now := watermark.Add(10 * time.Minute)

	backend := newFakeBackend()
	backend.issues[7] = &redmine.Issue{
		ID:          7,
		Subject:     "help",
		Description: "De: x@example.com\n\nbody",
		Journals: []redmine.Journal{
			{ID: 1, Notes: "old", CreatedOn: watermark.Add(-time.Minute)},
			{ID: 2, Notes: "new", CreatedOn: watermark.Add(time.Minute)},
		},
	}
	backend.updated = []redmine.Issue{{ID: 7}}

	sender := &fakeSender{}
	o := newTestOrchestrator(backend, &fakeMailbox{}, sender)
	o.watermark = watermark
	o.now = func() time.Time { return now }

	o.pollRedmine(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("Expected one notification, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "x@example.com" {
		t.Errorf("Notification sent to %q", sender.sent[0].To)
	}
	if !strings.Contains(sender.sent[0].Body, "new") {
		t.Errorf("Notification should quote the new note, got %q", sender.sent[0].Body)
	}

	want := now.Add(-5 * time.Minute)
	if !o.watermark.Equal(want) {
		t.Errorf("Watermark = %v, want %v", o.watermark, want)
	}
}

func TestPollRedmineKeepsWatermarkOnFailure(t *testing.T) {
	watermark := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	backend := newFakeBackend()
	backend.listErr = errors.New("redmine down")

	o := newTestOrchestrator(backend, &fakeMailbox{}, &fakeSender{})
	o.watermark = watermark

	o.pollRedmine(context.Background())

	if !o.watermark.Equal(watermark) {
		t.Errorf("Failed scan must leave the watermark untouched, got %v", o.watermark)
	}
}

func TestHandleIssueUpdated(t *testing.T) {
	backend := newFakeBackend()
	backend.issues[7] = &redmine.Issue{
		ID:          7,
		Subject:     "help",
		Description: "De: x@example.com\n\nbody",
	}

	sender := &fakeSender{}
	o := newTestOrchestrator(backend, &fakeMailbox{}, sender)

	if err := o.HandleIssueUpdated(context.Background(), 7); err != nil {
		t.Fatalf("HandleIssueUpdated() error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("Expected one notification, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].Subject, "[Redmine #7]") {
		t.Errorf("Subject = %q", sender.sent[0].Subject)
	}
}

func TestHandleIssueUpdatedMissingIssue(t *testing.T) {
	sender := &fakeSender{}
	o := newTestOrchestrator(newFakeBackend(), &fakeMailbox{}, sender)

	// Missing issue degrades to a no-op, not an error.
	if err := o.HandleIssueUpdated(context.Background(), 999); err != nil {
		t.Fatalf("HandleIssueUpdated() error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("No notification expected, got %+v", sender.sent)
	}
}

func TestHandleIssueUpdatedNoRequester(t *testing.T) {
	backend := newFakeBackend()
	backend.issues[7] = &redmine.Issue{ID: 7, Subject: "help", Description: "created in the UI"}

	sender := &fakeSender{}
	o := newTestOrchestrator(backend, &fakeMailbox{}, sender)

	if err := o.HandleIssueUpdated(context.Background(), 7); err != nil {
		t.Fatalf("HandleIssueUpdated() error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("No notification without a requester, got %+v", sender.sent)
	}
}

func TestHandleInboundMessage(t *testing.T) {
	backend := newFakeBackend()
	sender := &fakeSender{}
	o := newTestOrchestrator(backend, &fakeMailbox{}, sender)

	err := o.HandleInboundMessage(context.Background(), models.InboundMessage{
		From:     "a@b.com",
		Subject:  "Need help",
		BodyText: "it's broken",
	})
	if err != nil {
		t.Fatalf("HandleInboundMessage() error: %v", err)
	}

	if len(backend.creates) != 1 {
		t.Fatalf("Expected one createIssue call, got %d", len(backend.creates))
	}
	if len(sender.sent) != 1 {
		t.Errorf("Expected one confirmation mail, got %d", len(sender.sent))
	}
}

func TestMailboxBackoff(t *testing.T) {
	sender := &fakeSender{}
	o := newTestOrchestrator(newFakeBackend(), nil, sender)

	// Five straight failures arm the backoff.
	for i := 0; i < 5; i++ {
		o.pollInbox(context.Background())
	}

	if o.skipInboxTicks == 0 {
		t.Fatal("Expected inbox polls to be skipped after repeated failures")
	}

	skips := o.skipInboxTicks
	o.pollInbox(context.Background())
	if o.skipInboxTicks != skips-1 {
		t.Errorf("Skipped poll should decrement the counter, got %d", o.skipInboxTicks)
	}
}
