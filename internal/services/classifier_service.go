package services

import (
	"sort"
	"strings"
	"unicode"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentCrisis   Sentiment = "crisis"
)

// CrisisLevel is ordered; comparisons like level >= CrisisHigh are meaningful.
type CrisisLevel int

const (
	CrisisNone CrisisLevel = iota
	CrisisLow
	CrisisMedium
	CrisisHigh
	CrisisCritical
)

func (l CrisisLevel) String() string {
	switch l {
	case CrisisLow:
		return "low"
	case CrisisMedium:
		return "medium"
	case CrisisHigh:
		return "high"
	case CrisisCritical:
		return "critical"
	default:
		return "none"
	}
}

func (l CrisisLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

type InterventionType string

const (
	InterventionCrisis        InterventionType = "crisis"
	InterventionIdle          InterventionType = "idle"
	InterventionStruggling    InterventionType = "struggling"
	InterventionSessionAssist InterventionType = "session_assist"
	InterventionNone          InterventionType = "none"
)

type ClassificationResult struct {
	Sentiment        Sentiment        `json:"sentiment"`
	CrisisLevel      CrisisLevel      `json:"crisis_level"`
	Topics           []string         `json:"topics"`
	InterventionType InterventionType `json:"intervention_type"`
}

// NeedsSafetyResources reports whether static crisis resources must be shown.
func (r ClassificationResult) NeedsSafetyResources() bool {
	return r.CrisisLevel >= CrisisHigh || r.Sentiment == SentimentCrisis
}

// KeywordClassifier scores messages with fixed keyword lists. It makes no
// network calls and never fails; unrecognized text is none/neutral.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (k *KeywordClassifier) Classify(text string) ClassificationResult {
	padded := padTerms(text)
	level := crisisLevel(padded)
	topics := matchTopics(padded)

	return ClassificationResult{
		Sentiment:        sentiment(padded, level),
		CrisisLevel:      level,
		Topics:           topicTags(topics),
		InterventionType: intervention(padded, level),
	}
}

// normalizeTerms lowercases, drops apostrophes and turns every other
// non-alphanumeric rune into a space.
func normalizeTerms(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// padTerms returns the normalized text wrapped in spaces so that terms can
// be matched on word boundaries with a plain substring search.
func padTerms(text string) string {
	return " " + normalizeTerms(text) + " "
}

func hasTerm(padded, term string) bool {
	return strings.Contains(padded, " "+term+" ")
}

func anyTerm(padded string, terms []string) bool {
	for _, term := range terms {
		if hasTerm(padded, term) {
			return true
		}
	}
	return false
}

func crisisLevel(padded string) CrisisLevel {
	if anyTerm(padded, criticalTerms) {
		return CrisisCritical
	}
	if anyTerm(padded, highTerms) {
		if anyTerm(padded, planTerms) {
			return CrisisCritical
		}
		return CrisisHigh
	}
	if anyTerm(padded, mediumTerms) {
		return CrisisMedium
	}
	if anyTerm(padded, lowTerms) {
		return CrisisLow
	}
	return CrisisNone
}

func sentiment(padded string, level CrisisLevel) Sentiment {
	if level >= CrisisHigh {
		return SentimentCrisis
	}

	var pos, neg float64
	for _, word := range strings.Fields(padded) {
		pos += positiveLexicon[word]
		neg += negativeLexicon[word]
	}
	switch {
	case pos > 0 && pos > 1.5*neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// matchTopics returns every taxonomy tag present with the terms that matched it.
func matchTopics(padded string) map[string][]string {
	found := map[string][]string{}
	for _, topic := range topicTaxonomy {
		for _, term := range topic.terms {
			if hasTerm(padded, term) {
				found[topic.tag] = append(found[topic.tag], term)
			}
		}
	}
	return found
}

func topicTags(found map[string][]string) []string {
	tags := make([]string, 0, len(found))
	for tag := range found {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func intervention(padded string, level CrisisLevel) InterventionType {
	switch {
	case level >= CrisisMedium || anyTerm(padded, crisisInterventionTerms):
		return InterventionCrisis
	case level == CrisisLow || anyTerm(padded, strugglingTerms):
		return InterventionStruggling
	case anyTerm(padded, sessionAssistTerms):
		return InterventionSessionAssist
	case isIdleCheckIn(padded):
		return InterventionIdle
	default:
		return InterventionNone
	}
}

func isIdleCheckIn(padded string) bool {
	if anyTerm(padded, idleTerms) {
		return true
	}
	words := strings.Fields(padded)
	return len(words) > 0 && len(words) <= 3 && anyTerm(padded, greetingTerms)
}
