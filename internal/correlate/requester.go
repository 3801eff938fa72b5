package correlate

import "strings"

// RequesterPrefix marks the description line that records who opened the
// ticket by e-mail. Redmine has no requester field in this integration, so
// the address lives on the first line of the description and must survive
// every later edit of the issue.
const RequesterPrefix = "De:"

// ExtractRequester recovers the requester address from an issue description.
// Only the first line starting with the prefix counts; anything appended
// below it is ignored.
func ExtractRequester(description string) (string, bool) {
	for _, line := range strings.Split(description, "\n") {
		if strings.HasPrefix(line, RequesterPrefix) {
			addr := strings.TrimSpace(strings.TrimPrefix(line, RequesterPrefix))
			if addr == "" {
				return "", false
			}
			return addr, true
		}
	}
	return "", false
}

// FormatDescription builds the description of an issue created from e-mail,
// with the requester line first so ExtractRequester can find it later.
func FormatDescription(from, body string) string {
	return RequesterPrefix + " " + from + "\n\n" + body
}
