package usecase

import (
	"regexp"
	"strings"
)

// DefaultGateKeywords are job-application signal terms. Matching is by
// substring on lower-cased text.
var DefaultGateKeywords = []string{
	"application", "applied", "position", "hiring", "interview",
	"offer", "recruiter", "recruitment", "career", "assessment",
	"candidate", "resume", "cv", "job", "role", "opening",
	"opportunity", "thank you for applying", "software", "engineering", "backend",
}

// DefaultGatePhrases match on their own, regardless of keyword count.
var DefaultGatePhrases = []string{
	"thank you for applying",
	"we received your application",
	"next steps",
}

const minGateKeywordHits = 2

// KeywordGate is the cheap pre-filter run before any classifier call. It
// favours recall: a false positive costs one model call, a false negative
// loses the message for good.
type KeywordGate struct {
	keywords []string
	phrases  *regexp.Regexp
}

func NewKeywordGate(keywords, phrases []string) *KeywordGate {
	if len(keywords) == 0 {
		keywords = DefaultGateKeywords
	}
	if len(phrases) == 0 {
		phrases = DefaultGatePhrases
	}

	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		normalized = append(normalized, kw)
	}

	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}

	g := &KeywordGate{keywords: normalized}
	if len(quoted) > 0 {
		g.phrases = regexp.MustCompile(strings.Join(quoted, "|"))
	}
	return g
}

func (g *KeywordGate) ShouldClassify(subject, body string) bool {
	text := strings.ToLower(subject + " " + body)

	hits := 0
	for _, kw := range g.keywords {
		if strings.Contains(text, kw) {
			hits++
			if hits >= minGateKeywordHits {
				return true
			}
		}
	}

	return g.phrases != nil && g.phrases.MatchString(text)
}
