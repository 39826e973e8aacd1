package services

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// copingTechniques maps a display name to the terms that indicate it.
var copingTechniques = []topicCategory{
	{"breathing exercises", []string{"breathing", "deep breath", "deep breaths", "box breathing", "breathe"}},
	{"grounding", []string{"grounding", "5 4 3 2 1", "54321"}},
	{"meditation", []string{"meditation", "meditate", "meditating", "mindfulness"}},
	{"journaling", []string{"journal", "journaling", "writing it down", "write it down"}},
	{"exercise", []string{"exercise", "workout", "walk", "walking", "run", "running", "yoga"}},
	{"calling a sponsor", []string{"sponsor", "call my sponsor", "called my sponsor"}},
	{"support meetings", []string{"meeting", "meetings", "support group", "aa", "na"}},
	{"urge surfing", []string{"urge surfing", "ride the urge", "ride it out"}},
	{"HALT check", []string{"halt", "hungry angry lonely tired"}},
	{"playing the tape forward", []string{"play the tape forward", "playing the tape forward", "tape forward"}},
	{"gratitude list", []string{"gratitude", "gratitude list", "grateful for"}},
	{"prayer", []string{"pray", "prayer", "praying"}},
	{"cold water", []string{"cold water", "cold shower", "ice"}},
	{"distraction", []string{"distract", "distraction", "music", "hobby"}},
	{"reaching out", []string{"reach out", "reached out", "talk to a friend", "called a friend", "text a friend"}},
}

var relapseTerms = []string{
	"relapse", "relapsed", "relapsing", "slipped", "slip up", "used again", "drank again",
	"started drinking again", "started using again", "picked up again", "lost my sobriety",
}

// ConversationCompactor bounds the number of turns sent to a provider. Older
// turns are replaced by a single summary message.
type ConversationCompactor struct {
	threshold int
	keep      int
}

func NewConversationCompactor(threshold, keep int) *ConversationCompactor {
	if keep <= 0 {
		keep = 10
	}
	if threshold < keep {
		threshold = keep
	}
	return &ConversationCompactor{threshold: threshold, keep: keep}
}

// Compact returns the payload conversation. Incoming system messages are
// dropped once a system prompt is supplied or compaction happens.
func (c *ConversationCompactor) Compact(messages []ChatMessage, systemPrompt string) []ChatMessage {
	turns := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleSystem {
			turns = append(turns, m)
		}
	}

	if len(turns) <= c.threshold {
		if systemPrompt == "" {
			return messages
		}
		out := make([]ChatMessage, 0, len(turns)+1)
		out = append(out, ChatMessage{Role: RoleSystem, Content: systemPrompt})
		return append(out, turns...)
	}

	// The kept window opens on a user turn; a leading assistant reply joins the summary.
	split := len(turns) - c.keep
	for split < len(turns)-1 && turns[split].Role != RoleUser {
		split++
	}
	older := turns[:split]
	recent := turns[split:]

	summary := summarizeTurns(older)
	if systemPrompt != "" {
		summary = systemPrompt + "\n\n" + summary
	}

	out := make([]ChatMessage, 0, c.keep+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: summary})
	return append(out, recent...)
}

func summarizeTurns(turns []ChatMessage) string {
	topicCounts := map[string]int{}
	topicTerms := map[string]map[string]bool{}
	techniques := map[string]bool{}
	crisisEarlier := false
	relapseEarlier := false

	for _, m := range turns {
		padded := padTerms(m.Content)
		for tag, terms := range matchTopics(padded) {
			topicCounts[tag]++
			if topicTerms[tag] == nil {
				topicTerms[tag] = map[string]bool{}
			}
			for _, term := range terms {
				topicTerms[tag][term] = true
			}
		}
		for _, technique := range copingTechniques {
			if anyTerm(padded, technique.terms) {
				techniques[technique.tag] = true
			}
		}
		if m.Role == RoleUser {
			if crisisLevel(padded) >= CrisisMedium {
				crisisEarlier = true
			}
			if anyTerm(padded, relapseTerms) {
				relapseEarlier = true
			}
		}
	}

	tags := make([]string, 0, len(topicCounts))
	for tag := range topicCounts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if topicCounts[tags[i]] != topicCounts[tags[j]] {
			return topicCounts[tags[i]] > topicCounts[tags[j]]
		}
		return tags[i] < tags[j]
	})

	topics := make([]string, 0, len(tags))
	for _, tag := range tags {
		topics = append(topics, fmt.Sprintf("%s (%s)", tag, strings.Join(sortedKeys(topicTerms[tag]), ", ")))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Summary of the earlier conversation (%d messages, original wording omitted):\n", len(turns)))
	sb.WriteString("Recurring topics: " + listOrNone(topics) + "\n")
	sb.WriteString("Coping techniques discussed: " + listOrNone(sortedKeys(techniques)) + "\n")
	sb.WriteString("Crisis disclosed earlier: " + yesNo(crisisEarlier) + "\n")
	sb.WriteString("Relapse discussed earlier: " + yesNo(relapseEarlier))
	return sb.String()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
