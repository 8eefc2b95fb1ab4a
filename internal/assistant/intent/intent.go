package intent

import (
	"regexp"
	"strings"

	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
)

// Heuristic patterns for candidate policy names: "policy X", "X policy",
// double-quoted and single-quoted phrases.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)policy\s+([A-Za-z0-9\s]+)`),
	regexp.MustCompile(`(?i)([A-Za-z0-9\s]+)\s+policy`),
	regexp.MustCompile(`"([^"]+)"`),
	regexp.MustCompile(`'([^']+)'`),
}

// Intent classification keyword sets, in priority order.
var (
	listKeywords    = []string{"show", "list", "all", "get"}
	detailsKeywords = []string{"details", "about", "what is", "explain"}
	searchKeywords  = []string{"find", "search", "look for"}
)

// Extract parses a user question into a structured hint set: candidate
// policy names, explicit category mentions, a coarse intent label, and a
// confidence level. It performs no retrieval and never fails; anything
// unexpected degrades to the all-defaults low-confidence hint.
func Extract(question string) (hint schema.IntentHint) {
	defer func() {
		if r := recover(); r != nil {
			hint = schema.DefaultHint()
		}
	}()

	hint = schema.IntentHint{
		PolicyNames: extractNames(question),
		Categories:  extractCategories(question),
		Intent:      classify(question),
	}

	switch {
	case len(hint.PolicyNames) > 0 || len(hint.Categories) > 0:
		hint.Confidence = schema.ConfidenceHigh
	case strings.Contains(strings.ToLower(question), "policy"):
		hint.Confidence = schema.ConfidenceMedium
	default:
		hint.Confidence = schema.ConfidenceLow
	}

	return hint
}

// extractNames applies the four name heuristics, keeping matches longer than
// 2 trimmed characters, de-duplicated in first-occurrence order.
func extractNames(question string) []string {
	names := []string{}
	seen := make(map[string]struct{})
	for _, pattern := range namePatterns {
		for _, match := range pattern.FindAllStringSubmatch(question, -1) {
			name := strings.TrimSpace(match[1])
			if len(name) <= 2 {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// extractCategories matches whole words against the closed category set,
// case-insensitively, in order of appearance de-duplicated by first
// occurrence.
func extractCategories(question string) []string {
	categories := []string{}
	seen := make(map[string]struct{})
	for _, word := range tokenize(question) {
		if !models.IsValidCategory(word) {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		categories = append(categories, word)
	}
	return categories
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(question string) []string {
	return wordRe.FindAllString(strings.ToLower(question), -1)
}

// classify runs the priority-ordered keyword match over the lower-cased
// question.
func classify(question string) string {
	lower := strings.ToLower(question)
	switch {
	case containsAny(lower, listKeywords):
		return schema.IntentListPolicies
	case containsAny(lower, detailsKeywords):
		return schema.IntentGetPolicyDetails
	case containsAny(lower, searchKeywords):
		return schema.IntentSearchPolicies
	default:
		return schema.IntentGeneralQuery
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
