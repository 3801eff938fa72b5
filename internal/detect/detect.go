package detect

import (
	"context"
	"time"

	"redmine-email-connector/internal/correlate"
	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/models"
	"redmine-email-connector/internal/redmine"
)

// Backend is the read-only slice of the Redmine client the detector needs.
type Backend interface {
	ListUpdated(ctx context.Context) ([]redmine.Issue, error)
	GetIssue(ctx context.Context, id int) (*redmine.Issue, error)
}

// Detector finds Redmine-side activity that happened after a watermark.
// Each Scan is a fresh pull over the backend; the detector itself keeps no
// state, so the same watermark against the same backend yields the same
// updates.
type Detector struct {
	backend Backend
}

func NewDetector(backend Backend) *Detector {
	return &Detector{backend: backend}
}

// Scan emits one Update per journal note created strictly after the
// watermark, on issues whose requester address can be recovered from the
// description. Issues without a requester have no notification channel and
// are skipped. A detail fetch failing for one issue skips that issue only;
// the list query failing fails the whole scan (the caller then leaves its
// watermark untouched and re-covers the window next cycle).
//
// Updates come out in the backend's return order: per issue, most recently
// updated issue first, not globally sorted by note timestamp.
func (d *Detector) Scan(ctx context.Context, watermark time.Time) ([]models.Update, error) {
	issues, err := d.backend.ListUpdated(ctx)
	if err != nil {
		return nil, err
	}

	var updates []models.Update
	for _, issue := range issues {
		detail, err := d.backend.GetIssue(ctx, issue.ID)
		if err != nil {
			logging.Log.Errorf("Error fetching issue #%d during scan: %v", issue.ID, err)
			continue
		}

		requester, ok := correlate.ExtractRequester(detail.Description)
		if !ok {
			continue
		}

		for _, journal := range detail.Journals {
			if journal.Notes == "" {
				continue
			}
			if !journal.CreatedOn.After(watermark) {
				continue
			}

			updates = append(updates, models.Update{
				IssueID:   detail.ID,
				Subject:   detail.Subject,
				Requester: requester,
				JournalID: journal.ID,
				Notes:     journal.Notes,
				CreatedOn: journal.CreatedOn,
			})
		}
	}

	return updates, nil
}
