package notify

import (
	"context"
	"fmt"

	"redmine-email-connector/internal/correlate"
)

// Sender is the outbound-mail collaborator. Delivery and retry policy live
// behind it; the dispatcher itself sends each notification exactly once.
type Sender interface {
	Send(ctx context.Context, to, subject, body string, cc []string) error
}

// Dispatcher turns resolved events into outbound notification e-mails.
// Every subject embeds the correlation tag so a reply threads back to the
// right issue.
type Dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// IssueCreated confirms to the requester that their message opened a ticket.
func (d *Dispatcher) IssueCreated(ctx context.Context, issueID int, requester string) error {
	subject := fmt.Sprintf("%s Votre demande a été enregistrée", correlate.EncodeTag(issueID))
	body := fmt.Sprintf(`Bonjour,

Votre demande a été enregistrée dans notre système avec le numéro de ticket #%d.
Vous pouvez suivre l'évolution de votre demande en répondant à cet e-mail.

Cordialement,
L'équipe support
`, issueID)

	return d.sender.Send(ctx, requester, subject, body, nil)
}

// CommentAdded forwards a new journal note to the requester.
func (d *Dispatcher) CommentAdded(ctx context.Context, issueID int, requester, notes, subjectHint string) error {
	subject := fmt.Sprintf("%s Mise à jour: %s", correlate.EncodeTag(issueID), subjectHint)
	body := fmt.Sprintf(`Bonjour,

Une mise à jour a été effectuée sur votre ticket #%d:

%s

Vous pouvez répondre à cet e-mail pour ajouter un commentaire au ticket.

Cordialement,
L'équipe support
`, issueID, notes)

	return d.sender.Send(ctx, requester, subject, body, nil)
}

// IssueUpdated tells the requester something changed on their ticket,
// without quoting a specific note. Used by the webhook path, which fires
// on the update callback itself rather than on journal content.
func (d *Dispatcher) IssueUpdated(ctx context.Context, issueID int, requester, subjectHint string) error {
	subject := fmt.Sprintf("%s Mise à jour: %s", correlate.EncodeTag(issueID), subjectHint)
	body := fmt.Sprintf(`Bonjour,

Une mise à jour a été effectuée sur votre ticket #%d.

Vous pouvez répondre à cet e-mail pour ajouter un commentaire au ticket.

Cordialement,
L'équipe support
`, issueID)

	return d.sender.Send(ctx, requester, subject, body, nil)
}
