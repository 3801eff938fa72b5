package redmine

import "time"

// Issue is the subset of a Redmine issue the connector reads and writes.
// Journals are only populated by GetIssue (include=journals).
type Issue struct {
	ID          int       `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
	Journals    []Journal `json:"journals,omitempty"`
}

// Journal is one activity record on an issue. Entries with empty Notes are
// pure attribute changes (status, assignee) and carry nothing to mail out.
type Journal struct {
	ID        int       `json:"id"`
	Notes     string    `json:"notes"`
	CreatedOn time.Time `json:"created_on"`
}

// IssueDraft carries the fields for creating a new issue. Zero-valued
// classifier ids are omitted so Redmine applies its project defaults.
type IssueDraft struct {
	ProjectID    int    `json:"project_id"`
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	TrackerID    int    `json:"tracker_id,omitempty"`
	StatusID     int    `json:"status_id,omitempty"`
	PriorityID   int    `json:"priority_id,omitempty"`
	AssignedToID int    `json:"assigned_to_id,omitempty"`
}
