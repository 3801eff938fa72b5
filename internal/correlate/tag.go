package correlate

import (
	"fmt"
	"regexp"
	"strconv"
)

// tagRe matches the correlation tag embedded in notification subjects.
// Replies keep the tag because mail clients preserve the subject line.
var tagRe = regexp.MustCompile(`\[Redmine #(\d+)\]`)

// EncodeTag builds the correlation tag for an issue id, e.g. "[Redmine #42]".
func EncodeTag(issueID int) string {
	return fmt.Sprintf("[Redmine #%d]", issueID)
}

// DecodeTag scans a subject line for a correlation tag and returns the
// referenced issue id. Absence of a tag is a normal result, not an error.
// If a subject somehow carries several tags, the first one wins.
func DecodeTag(subject string) (int, bool) {
	m := tagRe.FindStringSubmatch(subject)
	if m == nil {
		return 0, false
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		// \d+ can still overflow int on absurd input
		return 0, false
	}
	return id, true
}
