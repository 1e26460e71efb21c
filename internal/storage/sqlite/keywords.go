package sqlite

import (
	"regexp"
	"strings"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "you": {}, "that": {}, "was": {}, "for": {},
	"are": {}, "with": {}, "his": {}, "they": {}, "this": {}, "have": {},
	"from": {},
}

var firstPerson = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "mine": {}, "who": {}, "am": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// queryKeywords tokenizes a retrieval query: lowercase, keep alphanumeric
// tokens of 3+ chars outside the stop list. First-person pronouns are too
// short to survive the filter, so their presence injects a synthetic "user"
// token so that "who am I" still surfaces self-identity facts.
func queryKeywords(query string) []string {
	clean := nonAlnum.ReplaceAllString(strings.ToLower(query), "")

	var keywords []string
	for _, tok := range strings.Fields(clean) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		keywords = append(keywords, tok)
	}

	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if _, ok := firstPerson[tok]; ok {
			keywords = append(keywords, "user")
			break
		}
	}

	return keywords
}
