package correlate

import (
	"context"
	"fmt"

	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/models"
)

// ActionKind classifies what an inbound message should become.
type ActionKind int

const (
	// ActionCreate opens a new issue from the message.
	ActionCreate ActionKind = iota
	// ActionComment appends the message as a note on an existing issue.
	ActionComment
)

// Action is the resolver's decision for one inbound message. For
// ActionCreate, Subject/Description/ProjectID are set; for ActionComment,
// IssueID/Comment are.
type Action struct {
	Kind ActionKind

	Subject     string
	Description string
	ProjectID   int

	IssueID int
	Comment string
}

// IssueChecker reports whether an issue id exists in the backend.
type IssueChecker interface {
	IssueExists(ctx context.Context, id int) (bool, error)
}

// Resolver decides whether an inbound message starts a new issue or
// comments on an existing one. It performs no mutation itself.
type Resolver struct {
	checker   IssueChecker
	projectID int
}

// NewResolver creates a Resolver using the given existence check and the
// project new issues are filed under.
func NewResolver(checker IssueChecker, projectID int) *Resolver {
	return &Resolver{checker: checker, projectID: projectID}
}

// Resolve maps a message to an Action. A subject without a correlation tag
// means a new issue; a tag referencing a missing issue is treated the same
// way rather than dropping the message. Only a transport failure of the
// existence check is an error, so the caller can retry the message later.
func (r *Resolver) Resolve(ctx context.Context, msg *models.InboundMessage) (*Action, error) {
	issueID, tagged := DecodeTag(msg.Subject)
	if tagged {
		exists, err := r.checker.IssueExists(ctx, issueID)
		if err != nil {
			return nil, fmt.Errorf("checking issue #%d: %w", issueID, err)
		}
		if exists {
			return &Action{
				Kind:    ActionComment,
				IssueID: issueID,
				Comment: FormatComment(msg.From, msg.BodyText),
			}, nil
		}
		logging.WithTrace(msg.TraceID).Warnf("Subject references missing issue #%d, creating a new one", issueID)
	}

	return &Action{
		Kind:        ActionCreate,
		Subject:     msg.Subject,
		Description: FormatDescription(msg.From, msg.BodyText),
		ProjectID:   r.projectID,
	}, nil
}

// FormatComment attributes an e-mailed reply to its sender so the note is
// readable in the Redmine journal.
func FormatComment(from, body string) string {
	return fmt.Sprintf("Commentaire par e-mail de %s:\n\n%s", from, body)
}
