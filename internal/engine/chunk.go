package engine

import (
	"regexp"
	"strings"
)

var sentenceRe = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

// splitSentences breaks text on sentence-ending punctuation. Trailing text
// without terminal punctuation becomes the final sentence.
func splitSentences(text string) []string {
	var sentences []string
	consumed := 0
	for _, m := range sentenceRe.FindAllStringSubmatchIndex(text, -1) {
		s := strings.TrimSpace(text[m[2]:m[3]])
		if s != "" {
			sentences = append(sentences, s)
		}
		consumed = m[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// chunkText splits text into chunks by aggregating whole sentences up to
// chunkSize characters, carrying the last sentence forward as overlap when it
// fits within the overlap budget. Sentence boundaries keep entities intact;
// a single oversized sentence becomes its own chunk rather than being cut.
func chunkText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		if currentLen+len(sentence) > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			// Carry the tail sentence into the next chunk for context
			last := current[len(current)-1]
			if len(last) <= overlap {
				current = []string{last, sentence}
			} else {
				current = []string{sentence}
			}
			currentLen = len(strings.Join(current, " "))
			continue
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
