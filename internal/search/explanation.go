package search

import "fmt"

// Explanation describes how a document's score was computed, as a tree of
// named contributions.
type Explanation struct {
	Match       bool           `json:"match"`
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

// Explain builds a matching explanation node.
func Explain(value float64, description string, details ...*Explanation) *Explanation {
	return &Explanation{Match: true, Value: value, Description: description, Details: details}
}

// Explainf is Explain with a formatted description.
func Explainf(value float64, format string, args ...any) *Explanation {
	return Explain(value, fmt.Sprintf(format, args...))
}

// NoMatch builds a non-matching explanation node.
func NoMatch(description string, details ...*Explanation) *Explanation {
	return &Explanation{Match: false, Value: 0, Description: description, Details: details}
}
