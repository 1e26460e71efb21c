package memory

import (
	"regexp"
	"strings"
)

// Verbs describing the chat itself rather than the world. Facts built on
// them are conversation log entries, not knowledge.
var metaVerbs = map[string]bool{
	"requested": true, "inquired": true, "asked": true, "presented": true,
	"tasked": true, "queried": true, "answered": true, "responded": true,
	"told": true, "said": true, "mentioned": true, "stated": true,
	"explained": true, "summarized": true,
}

// Transient physical and emotional states. A fact about a mood is stale
// before the next turn finishes.
var moodKeywords = map[string]bool{
	"tired": true, "hungry": true, "thirsty": true, "sleepy": true,
	"exhausted": true, "sick": true, "ill": true, "cold": true, "hot": true,
	"sweaty": true, "energetic": true, "weak": true, "dizzy": true,
	"faint": true, "happy": true, "sad": true, "angry": true,
	"frustrated": true, "annoyed": true, "bored": true, "excited": true,
	"anxious": true, "nervous": true, "stressed": true, "worried": true,
	"scared": true, "afraid": true, "terrified": true, "lonely": true,
	"miserable": true, "guilty": true, "ashamed": true, "jealous": true,
	"envious": true, "bitter": true, "cheerful": true, "content": true,
	"relaxed": true, "calm": true, "peaceful": true, "proud": true,
	"hopeful": true, "enthusiastic": true, "eager": true, "amused": true,
	"delighted": true, "ecstatic": true, "satisfied": true, "confused": true,
	"puzzled": true, "surprised": true, "shocked": true, "overwhelmed": true,
	"focused": true, "distracted": true, "productive": true, "lazy": true,
	"unmotivated": true, "cranky": true, "grumpy": true, "moody": true,
}

var (
	wordPattern = regexp.MustCompile(`\b\w+\b`)
	// Present-continuous actions like "is walking" or "are searching".
	actionPattern = regexp.MustCompile(`\b(am|is|are|was|were)\b\s+\w+ing\b`)
	idSuffix      = regexp.MustCompile(`\s*\(ID:\s*\d+\)$`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]`)
)

// ValidFactContent rejects facts that describe the conversation, a mood, or
// an ongoing action. Models produce these constantly despite the prompt
// forbidding them.
func ValidFactContent(fact string) bool {
	if len(strings.TrimSpace(fact)) < 3 {
		return false
	}

	lower := strings.ToLower(fact)
	if strings.Contains(lower, "wants to") {
		return false
	}
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if metaVerbs[word] || moodKeywords[word] {
			return false
		}
	}
	return !actionPattern.MatchString(lower)
}

// stripIDSuffix drops a trailing "(ID: n)" the model sometimes copies from
// the memory listing into the fact text.
func stripIDSuffix(fact string) string {
	return strings.TrimSpace(idSuffix.ReplaceAllString(strings.TrimSpace(fact), ""))
}

// normalizeFact reduces a fact to lowercase alphanumerics for dedup checks,
// so punctuation and spacing variants of the same fact collapse.
func normalizeFact(fact string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(fact), "")
}
