// Package parser turns user query strings into query trees.
//
// The syntax is a small boolean language: whitespace-separated terms are
// combined with OR semantics, the AND, OR and NOT operators (upper case)
// combine clauses explicitly, and a field:term token restricts a term to
// one field. Bare terms search both the title and body fields.
package parser

import (
	"net/http"
	"strings"

	"github.com/strata-search/strata/internal/indexer/tokenizer"
	"github.com/strata-search/strata/internal/search/query"
	"github.com/strata-search/strata/pkg/errors"
)

// SearchFields lists the fields a bare term searches, in scoring order.
var SearchFields = []string{"title", "body"}

// Parse converts a raw query string into a query tree. An empty or
// all-stopword query yields MatchNone after rewrite; the literal "*"
// yields MatchAll.
func Parse(raw string) (query.Query, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New(errors.ErrInvalidQuery, http.StatusBadRequest, "empty query")
	}
	if raw == "*" {
		return &query.MatchAllQuery{}, nil
	}

	tokens := strings.Fields(raw)
	root := &query.BooleanQuery{}
	var pendingOp string

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "AND", "OR":
			pendingOp = tok
			continue
		case "NOT":
			if i+1 >= len(tokens) {
				return nil, errors.New(errors.ErrInvalidQuery, http.StatusBadRequest, "NOT requires a following term")
			}
			i++
			clause, err := parseTermToken(tokens[i])
			if err != nil {
				return nil, err
			}
			if clause != nil {
				root.MustNot = append(root.MustNot, clause)
			}
			pendingOp = ""
			continue
		}

		clause, err := parseTermToken(tok)
		if err != nil {
			return nil, err
		}
		if clause == nil {
			// Stopword-only token, skip.
			pendingOp = ""
			continue
		}
		if pendingOp == "AND" {
			root.Must = append(root.Must, clause)
		} else {
			root.Should = append(root.Should, clause)
		}
		pendingOp = ""
	}

	if len(root.Must) == 0 && len(root.Should) == 0 && len(root.MustNot) == 0 {
		return nil, errors.New(errors.ErrInvalidQuery, http.StatusBadRequest, "query has no searchable terms")
	}
	return root, nil
}

// parseTermToken builds the clause for one token. A bare term expands to
// a Should over the default search fields; field:term stays single-field.
// Returns nil when analysis removes the token entirely.
func parseTermToken(tok string) (query.Query, error) {
	if field, text, ok := strings.Cut(tok, ":"); ok && field != "" && text != "" {
		if !isSearchField(field) {
			return nil, errors.Newf(errors.ErrInvalidQuery, http.StatusBadRequest, "unknown field %q", field)
		}
		analyzed := tokenizer.AnalyzeTerm(text)
		if analyzed == "" {
			return nil, nil
		}
		return query.NewTermQuery(field, analyzed), nil
	}

	analyzed := tokenizer.AnalyzeTerm(tok)
	if analyzed == "" {
		return nil, nil
	}
	fieldClauses := make([]query.Query, 0, len(SearchFields))
	for _, field := range SearchFields {
		fieldClauses = append(fieldClauses, query.NewTermQuery(field, analyzed))
	}
	return &query.BooleanQuery{Should: fieldClauses}, nil
}

func isSearchField(field string) bool {
	for _, f := range SearchFields {
		if f == field {
			return true
		}
	}
	return false
}
