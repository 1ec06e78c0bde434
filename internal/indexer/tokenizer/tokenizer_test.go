package tokenizer

import (
	"reflect"
	"testing"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits on punctuation",
			input: "Distributed-Search, Engine!",
			want:  []string{"distribut", "search", "engin"},
		},
		{
			name:  "removes stop words",
			input: "the quick fox and the dog",
			want:  []string{"quick", "fox", "dog"},
		},
		{
			name:  "stems plural and verb forms",
			input: "running searches indexes",
			want:  []string{"run", "search", "index"},
		},
		{
			name:  "drops single character tokens",
			input: "a b c go",
			want:  []string{"go"},
		},
		{
			name:  "keeps digits",
			input: "error 404 page",
			want:  []string{"error", "404", "page"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Analyze(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAnalyzePositionsAreTokenOffsets(t *testing.T) {
	got := Analyze("the search engine searches")
	// "the" is removed, so positions are over the kept stream.
	want := []string{"search", "engin", "search"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Analyze = %v, want %v", got, want)
	}
}

func TestAnalyzeTerm(t *testing.T) {
	if got := AnalyzeTerm("Searching"); got != "search" {
		t.Errorf("AnalyzeTerm(Searching) = %q, want %q", got, "search")
	}
	if got := AnalyzeTerm("the"); got != "" {
		t.Errorf("AnalyzeTerm(the) = %q, want empty", got)
	}
}
