package models

import "time"

// Update is one unit of Redmine-side activity the change detector found:
// a journal note added after the current watermark, on an issue whose
// requester address could be resolved.
type Update struct {
	IssueID   int
	Subject   string
	Requester string
	JournalID int
	Notes     string
	CreatedOn time.Time
}
