// Package extract turns raw text into named entities and ranked keywords.
// The default implementation is pattern-based: regular expressions for
// structured entities and indicator word lists for proper-noun spans. It is
// deliberately cheap so ingestion never blocks on an external NER service.
package extract

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned when an extraction provider cannot serve the request.
var ErrUnavailable = errors.New("extraction unavailable")

// Entity categories.
const (
	CategoryPerson       = "person"
	CategoryOrganization = "organization"
	CategoryLocation     = "location"
	CategoryEmail        = "email"
	CategoryURL          = "url"
	CategoryPhone        = "phone"
)

// Extraction is the result of analyzing one text. Empty results are valid;
// most short text contains no named entities.
type Extraction struct {
	Entities map[string][]string
	Keywords []string
}

// Extractor maps text to entities and keywords.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlRe   = regexp.MustCompile(`https?://[^\s]+`)
	phoneRe = regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.]?[0-9]{4}\b`)
	// Capitalized spans: "TechCorp", "San Francisco", "Dr Jane Doe"
	properRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)
	wordRe   = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
)

var personIndicators = wordSet(
	"mr", "ms", "mrs", "dr", "prof", "ceo", "cto", "founder",
	"author", "engineer", "manager", "director", "president",
)

var orgIndicators = wordSet(
	"inc", "corp", "ltd", "llc", "company", "organization",
	"university", "institute", "bank", "hospital", "agency",
	"labs", "technologies", "systems",
)

var locationIndicators = wordSet(
	"city", "town", "state", "country", "region", "province",
	"district", "avenue", "street", "road", "boulevard",
)

var stopWords = wordSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "is", "was", "are", "were", "been", "be", "have", "has",
	"had", "do", "does", "did", "will", "would", "should", "could", "may",
	"might", "must", "can", "this", "that", "these", "those", "i", "you",
	"he", "she", "it", "we", "they", "what", "which", "who", "when", "where",
	"why", "how", "as", "by", "from", "not", "now", "also",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// PatternExtractor is the built-in pattern-based extractor.
type PatternExtractor struct {
	MaxKeywords int
}

// NewPatternExtractor returns an extractor capped at maxKeywords keywords per text.
func NewPatternExtractor(maxKeywords int) *PatternExtractor {
	if maxKeywords <= 0 {
		maxKeywords = 10
	}
	return &PatternExtractor{MaxKeywords: maxKeywords}
}

// Extract analyzes text and returns entities by category plus ranked keywords.
// It never fails; the error return exists for provider implementations that can.
func (e *PatternExtractor) Extract(_ context.Context, text string) (Extraction, error) {
	result := Extraction{
		Entities: map[string][]string{},
		Keywords: e.keywords(text),
	}

	addAll(result.Entities, CategoryEmail, emailRe.FindAllString(text, -1))
	addAll(result.Entities, CategoryURL, urlRe.FindAllString(text, -1))
	addAll(result.Entities, CategoryPhone, phoneRe.FindAllString(text, -1))

	// Classify capitalized spans by the indicator words around and inside them.
	for _, span := range properRe.FindAllString(text, -1) {
		lower := strings.ToLower(span)
		words := strings.Fields(lower)
		switch {
		case containsAny(words, personIndicators):
			addOne(result.Entities, CategoryPerson, span)
		case containsAny(words, orgIndicators) || hasSuffixAny(lower, "corp", "inc", "labs", "tech"):
			addOne(result.Entities, CategoryOrganization, span)
		case containsAny(words, locationIndicators):
			addOne(result.Entities, CategoryLocation, span)
		}
	}

	return result, nil
}

// keywords returns unique stopword-filtered words in first-occurrence order.
// Capitalized terms keep their lowercase form so overlap comparison is
// case-insensitive.
func (e *PatternExtractor) keywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range wordRe.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if stopWords[w] || seen[w] {
			continue
		}
		keywords = append(keywords, w)
		seen[w] = true
		if len(keywords) >= e.MaxKeywords {
			break
		}
	}
	return keywords
}

// KeywordOverlap computes the Jaccard index of two keyword lists and the
// shared terms, case-insensitively.
func KeywordOverlap(a, b []string) (float64, []string) {
	setA := make(map[string]bool, len(a))
	for _, k := range a {
		setA[strings.ToLower(k)] = true
	}

	var shared []string
	setB := make(map[string]bool, len(b))
	for _, k := range b {
		k = strings.ToLower(k)
		if setB[k] {
			continue
		}
		setB[k] = true
		if setA[k] {
			shared = append(shared, k)
		}
	}

	union := len(setA) + len(setB) - len(shared)
	if union == 0 {
		return 0, nil
	}
	return float64(len(shared)) / float64(union), shared
}

func addAll(entities map[string][]string, category string, values []string) {
	for _, v := range values {
		addOne(entities, category, v)
	}
}

func addOne(entities map[string][]string, category, value string) {
	for _, existing := range entities[category] {
		if existing == value {
			return
		}
	}
	entities[category] = append(entities[category], value)
}

func containsAny(words []string, set map[string]bool) bool {
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
