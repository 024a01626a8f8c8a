package bot

import "strings"

// Affirmative/negative matching is exact-token and case-insensitive, never
// substring: unrelated text containing these letters must not misfire.
var (
	yesTokens = []string{"y", "yes", "✅"}
	noTokens  = []string{"n", "no", "❌"}
)

func isYes(s string) bool { return matchToken(s, yesTokens) }
func isNo(s string) bool  { return matchToken(s, noTokens) }

func matchToken(s string, tokens []string) bool {
	s = strings.TrimSpace(s)
	for _, tok := range tokens {
		if strings.EqualFold(s, tok) {
			return true
		}
	}
	return false
}
