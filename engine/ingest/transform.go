package ingest

import (
	"strings"
	"unicode"
)

// DefaultChunkTokens is the target token budget per chunk.
const DefaultChunkTokens = 500

// estimateTokens approximates the token count as chars/4.
func estimateTokens(s string) int {
	return len(s) / 4
}

// ChunkText splits text into chunks of at most maxTokens (approximate).
// Text within budget is returned whole. Oversized text is split on
// blank-line paragraph boundaries and greedily packed; a single paragraph
// that still exceeds the budget is further split on sentence boundaries.
// Chunks are never empty, and if everything fails the original text comes
// back as a single chunk.
//
// Joiners are preserved so reconstruction is lossless: paragraph-level
// chunks rejoin with "\n\n", sentence-level chunks rejoin with "".
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	if estimateTokens(text) <= maxTokens {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) == 1 {
		chunks := packSentences(splitSentences(text), maxTokens)
		if len(chunks) == 0 {
			return []string{text}
		}
		return chunks
	}

	var chunks []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}

	for _, p := range paragraphs {
		pt := estimateTokens(p)
		if pt > maxTokens {
			// Oversized paragraph: flush what we have, then sentence-split.
			flush()
			sub := packSentences(splitSentences(p), maxTokens)
			if len(sub) == 0 {
				sub = []string{p}
			}
			chunks = append(chunks, sub...)
			continue
		}
		if buf.Len() > 0 && estimateTokens(buf.String())+pt+1 > maxTokens {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// splitSentences cuts text after sentence-ending punctuation, keeping the
// delimiter and any following whitespace attached so that concatenating
// the pieces reproduces the input exactly.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			// Consume trailing whitespace into this sentence.
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			sentences = append(sentences, string(runes[start:j]))
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

// packSentences greedily packs sentences into chunks under the budget.
// Sentences are never split; a single sentence over budget becomes its own
// chunk rather than being cut mid-sentence.
func packSentences(sentences []string, maxTokens int) []string {
	var chunks []string
	var buf strings.Builder
	for _, s := range sentences {
		st := estimateTokens(s)
		if buf.Len() > 0 && estimateTokens(buf.String())+st > maxTokens {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		buf.WriteString(s)
		if st > maxTokens {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
