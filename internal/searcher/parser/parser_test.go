package parser

import (
	"strings"
	"testing"

	"github.com/strata-search/strata/internal/search/query"
)

func parseAndRewrite(t *testing.T, raw string) query.Query {
	t.Helper()
	q, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	rewritten, err := query.Rewrite(q)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	return rewritten
}

func TestParseBareTermSearchesBothFields(t *testing.T) {
	q := parseAndRewrite(t, "golang")
	s := q.String()
	if !strings.Contains(s, "title:golang") || !strings.Contains(s, "body:golang") {
		t.Errorf("bare term should search title and body, got %s", s)
	}
}

func TestParseFieldQualifiedTerm(t *testing.T) {
	q := parseAndRewrite(t, "title:Searching")
	if q.String() != "title:search" {
		t.Errorf("got %s, want stemmed single-field term", q)
	}
}

func TestParseUnknownFieldRejected(t *testing.T) {
	if _, err := Parse("author:smith"); err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestParseOperators(t *testing.T) {
	q, err := Parse("go AND fast NOT slow")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, ok := q.(*query.BooleanQuery)
	if !ok {
		t.Fatalf("got %T, want *BooleanQuery", q)
	}
	// "go" arrives before AND so it lands in Should; "fast" is the AND operand.
	if len(b.Must) != 1 {
		t.Errorf("Must clauses = %d, want 1", len(b.Must))
	}
	if len(b.Should) != 1 {
		t.Errorf("Should clauses = %d, want 1", len(b.Should))
	}
	if len(b.MustNot) != 1 {
		t.Errorf("MustNot clauses = %d, want 1", len(b.MustNot))
	}
}

func TestParseMatchAll(t *testing.T) {
	q, err := Parse("*")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := q.(*query.MatchAllQuery); !ok {
		t.Errorf("got %T, want *MatchAllQuery", q)
	}
}

func TestParseRejectsEmptyAndStopwordQueries(t *testing.T) {
	for _, raw := range []string{"", "   ", "the of and"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) should fail", raw)
		}
	}
}

func TestParseAnalyzesTermsLikeIndexedText(t *testing.T) {
	q := parseAndRewrite(t, "body:Running")
	if q.String() != "body:run" {
		t.Errorf("query terms must go through the same analysis, got %s", q)
	}
}

func TestParseTrailingNotRejected(t *testing.T) {
	if _, err := Parse("go NOT"); err == nil {
		t.Fatal("trailing NOT should be rejected")
	}
}
