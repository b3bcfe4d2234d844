package conversation

import "strings"

// searchToken is the marker the dialog engine drops into a reply when it has
// gathered enough facts to run a movie search.
const searchToken = "search_now"

// ShouldSearch reports whether the dialog reply asks for a movie search.
// The check is substring-based over the joined, case-folded reply, matching
// the dialog engine's templating contract.
func ShouldSearch(replyLines []string) bool {
	joined := strings.ToLower(strings.Join(replyLines, " "))
	return strings.Contains(joined, searchToken)
}

// FirstNonEmptyLine picks the user-facing message out of a dialog reply.
// Returns "" when every line is empty.
func FirstNonEmptyLine(replyLines []string) string {
	for _, line := range replyLines {
		if line != "" {
			return line
		}
	}
	return ""
}
