package responder

import (
	"fmt"
	"regexp"
	"strings"

	"policyhub/internal/assistant/schema"
)

// synthesisLimit caps the number of chunks summarized into a synthesized
// answer.
const synthesisLimit = 3

const (
	synthesisLeadIn  = "Here's what I found in the most relevant policy sections:"
	synthesisClosing = "For more detail, try asking a more specific question about one of these policies."
)

// sentenceEndRe locates sentence-ending punctuation followed by whitespace.
var sentenceEndRe = regexp.MustCompile(`[.!?]\s`)

// Synthesize builds a deterministic answer from retrieved chunks, used when
// the completion model refuses to answer despite matching context. It takes
// the first sentence of each of the first chunks and renders them as a
// bullet list with a provenance suffix naming the source policy. Returns ""
// when no chunks are available; the caller must not use an empty result as
// an answer.
func Synthesize(docs []schema.Document) string {
	if len(docs) == 0 {
		return ""
	}

	limit := synthesisLimit
	if len(docs) < limit {
		limit = len(docs)
	}

	bullets := make([]string, 0, limit)
	for _, doc := range docs[:limit] {
		sentence := firstSentence(doc.Text)
		if sentence == "" {
			continue
		}
		if source := sourceName(doc.Metadata); source != "" {
			sentence = fmt.Sprintf("%s (from %s)", sentence, source)
		}
		bullets = append(bullets, "- "+sentence)
	}
	if len(bullets) == 0 {
		return ""
	}

	return synthesisLeadIn + "\n\n" + strings.Join(bullets, "\n") + "\n\n" + synthesisClosing
}

// firstSentence extracts the first sentence of a chunk, with embedded
// newlines collapsed.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if loc := sentenceEndRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]+1]
	}
	// Collapse newlines and runs of whitespace into single spaces.
	return strings.Join(strings.Fields(text), " ")
}

// sourceName picks the provenance label for a chunk: policy name first, then
// title, then the raw policy id.
func sourceName(meta schema.ChunkMetadata) string {
	if meta.PolicyName != "" {
		return meta.PolicyName
	}
	if meta.Title != "" {
		return meta.Title
	}
	if meta.PolicyID > 0 {
		return fmt.Sprintf("policy %d", meta.PolicyID)
	}
	return ""
}
