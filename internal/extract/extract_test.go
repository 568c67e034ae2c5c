package extract

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestKeywordsFilterAndOrder(t *testing.T) {
	e := NewPatternExtractor(10)

	got, err := e.Extract(context.Background(), "The quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Errorf("keywords = %v, want %v", got.Keywords, want)
	}
}

func TestKeywordsDeduplicatedAndCapped(t *testing.T) {
	e := NewPatternExtractor(3)

	got, _ := e.Extract(context.Background(), "alpha beta alpha gamma delta epsilon")
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Errorf("keywords = %v, want %v", got.Keywords, want)
	}
}

func TestKeywordsLowercased(t *testing.T) {
	e := NewPatternExtractor(10)

	got, _ := e.Extract(context.Background(), "Alice uses PostgreSQL")
	for _, k := range got.Keywords {
		if k != "alice" && k != "uses" && k != "postgresql" {
			t.Errorf("unexpected keyword %q", k)
		}
	}
}

func TestStructuredEntities(t *testing.T) {
	e := NewPatternExtractor(10)

	text := "Reach me at jane@example.com or https://example.com/docs or 415-555-1234."
	got, _ := e.Extract(context.Background(), text)

	if len(got.Entities[CategoryEmail]) != 1 || got.Entities[CategoryEmail][0] != "jane@example.com" {
		t.Errorf("email = %v", got.Entities[CategoryEmail])
	}
	if len(got.Entities[CategoryURL]) != 1 {
		t.Errorf("url = %v", got.Entities[CategoryURL])
	}
	if len(got.Entities[CategoryPhone]) != 1 || got.Entities[CategoryPhone][0] != "415-555-1234" {
		t.Errorf("phone = %v", got.Entities[CategoryPhone])
	}
}

func TestProperNounClassification(t *testing.T) {
	e := NewPatternExtractor(10)

	got, _ := e.Extract(context.Background(), "Dr Jane Doe joined TechCorp as an engineer.")

	if len(got.Entities[CategoryPerson]) == 0 {
		t.Errorf("person entities = %v, want Dr Jane Doe", got.Entities[CategoryPerson])
	}
	found := false
	for _, org := range got.Entities[CategoryOrganization] {
		if org == "TechCorp" {
			found = true
		}
	}
	if !found {
		t.Errorf("organization entities = %v, want TechCorp", got.Entities[CategoryOrganization])
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := NewPatternExtractor(10)

	got, err := e.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Keywords) != 0 {
		t.Errorf("keywords = %v, want none", got.Keywords)
	}
}

func TestKeywordOverlap(t *testing.T) {
	tests := []struct {
		name       string
		a, b       []string
		wantJacc   float64
		wantShared int
	}{
		{"disjoint", []string{"alpha", "beta"}, []string{"gamma"}, 0, 0},
		{"identical", []string{"alpha", "beta"}, []string{"alpha", "beta"}, 1, 2},
		{"partial", []string{"alpha", "beta", "gamma"}, []string{"beta", "gamma", "delta"}, 0.5, 2},
		{"case insensitive", []string{"Alpha"}, []string{"alpha"}, 1, 1},
		{"both empty", nil, nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jacc, shared := KeywordOverlap(tt.a, tt.b)
			if math.Abs(jacc-tt.wantJacc) > 1e-9 {
				t.Errorf("jaccard = %v, want %v", jacc, tt.wantJacc)
			}
			if len(shared) != tt.wantShared {
				t.Errorf("shared = %v, want %d terms", shared, tt.wantShared)
			}
		})
	}
}
