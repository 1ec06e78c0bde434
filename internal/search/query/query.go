// Package query defines the query tree executed by the search layer and
// the rewrite pass that simplifies it before weight construction.
package query

import (
	"fmt"
	"strings"

	"github.com/strata-search/strata/internal/index"
)

// Query is a node in the query tree. Implementations are immutable once
// built; Rewrite returns new nodes rather than mutating.
type Query interface {
	// String renders a deterministic representation used as a profile and
	// cache key.
	String() string
}

// TermQuery matches documents containing a single term in one field.
type TermQuery struct {
	Term index.Term
}

// NewTermQuery builds a TermQuery for field:text.
func NewTermQuery(field, text string) *TermQuery {
	return &TermQuery{Term: index.Term{Field: field, Text: text}}
}

func (q *TermQuery) String() string {
	return q.Term.String()
}

// BooleanQuery combines clauses. Must clauses all have to match, Should
// clauses are optional scoring clauses (at least one must match when no
// Must clause is present), MustNot clauses exclude matches without
// contributing to scores.
type BooleanQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

func (q *BooleanQuery) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	first := true
	writeClauses := func(prefix string, clauses []Query) {
		for _, c := range clauses {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteString(prefix)
			sb.WriteString(c.String())
		}
	}
	writeClauses("+", q.Must)
	writeClauses("", q.Should)
	writeClauses("-", q.MustNot)
	sb.WriteByte(')')
	return sb.String()
}

// MatchAllQuery matches every document with a constant score.
type MatchAllQuery struct{}

func (q *MatchAllQuery) String() string { return "*:*" }

// MatchNoneQuery matches nothing.
type MatchNoneQuery struct{}

func (q *MatchNoneQuery) String() string { return "-*:*" }

// ExtractTerms collects the terms a query can match on, for distributed
// frequency aggregation. MustNot clauses are excluded since their terms
// never contribute to scoring.
func ExtractTerms(q Query) []index.Term {
	seen := make(map[index.Term]struct{})
	var terms []index.Term
	var walk func(Query)
	walk = func(q Query) {
		switch qt := q.(type) {
		case *TermQuery:
			if _, ok := seen[qt.Term]; !ok {
				seen[qt.Term] = struct{}{}
				terms = append(terms, qt.Term)
			}
		case *BooleanQuery:
			for _, c := range qt.Must {
				walk(c)
			}
			for _, c := range qt.Should {
				walk(c)
			}
		}
	}
	walk(q)
	return terms
}

// Rewrite simplifies a query tree to a fixed point:
//   - boolean queries with no clauses become MatchNone
//   - single-clause Must or Should booleans without MustNot collapse to
//     their clause
//   - a MatchNone in a Must position makes the whole boolean MatchNone
//   - MatchNone Should and MustNot clauses are pruned
//
// Rewrite never mutates its input.
func Rewrite(q Query) (Query, error) {
	switch qt := q.(type) {
	case *TermQuery, *MatchAllQuery, *MatchNoneQuery:
		return q, nil
	case *BooleanQuery:
		return rewriteBoolean(qt)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func rewriteBoolean(q *BooleanQuery) (Query, error) {
	must := make([]Query, 0, len(q.Must))
	for _, c := range q.Must {
		r, err := Rewrite(c)
		if err != nil {
			return nil, err
		}
		if _, none := r.(*MatchNoneQuery); none {
			return &MatchNoneQuery{}, nil
		}
		must = append(must, r)
	}

	should := make([]Query, 0, len(q.Should))
	for _, c := range q.Should {
		r, err := Rewrite(c)
		if err != nil {
			return nil, err
		}
		if _, none := r.(*MatchNoneQuery); none {
			continue
		}
		should = append(should, r)
	}

	mustNot := make([]Query, 0, len(q.MustNot))
	for _, c := range q.MustNot {
		r, err := Rewrite(c)
		if err != nil {
			return nil, err
		}
		if _, none := r.(*MatchNoneQuery); none {
			continue
		}
		mustNot = append(mustNot, r)
	}

	if len(must) == 0 && len(should) == 0 {
		if len(mustNot) == 0 {
			return &MatchNoneQuery{}, nil
		}
		// Pure exclusion matches nothing without a positive clause.
		return &MatchNoneQuery{}, nil
	}
	if len(mustNot) == 0 {
		if len(must) == 1 && len(should) == 0 {
			return must[0], nil
		}
		if len(must) == 0 && len(should) == 1 {
			return should[0], nil
		}
	}
	return &BooleanQuery{Must: must, Should: should, MustNot: mustNot}, nil
}
