package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		found bool
	}{
		{
			name:  "clean json",
			raw:   `{"answer": "Paris"}`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "json embedded in chatter",
			raw:   `Sure! Here is the result: {"answer": "Paris"} hope that helps.`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "single quotes",
			raw:   `{'answer': 'Paris'}`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "bare key",
			raw:   `{answer: "Paris"}`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "misspelled key",
			raw:   `{"anwser": "Paris"}`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "multi select delimiter preserved",
			raw:   `{"answer": "red###blue###green"}`,
			want:  "red" + Delimiter + "blue" + Delimiter + "green",
			found: true,
		},
		{
			name:  "numeric answer",
			raw:   `{"answer": 2}`,
			want:  "2",
			found: true,
		},
		{
			name:  "boolean answer",
			raw:   `{"answer": true}`,
			want:  "true",
			found: true,
		},
		{
			name:  "whitespace runs collapsed",
			raw:   "{\n  \"answer\" :   \"Paris\"\n}",
			want:  "Paris",
			found: true,
		},
		{
			name:  "regex fallback when braces do not parse",
			raw:   `broken { not json } but "answer": "Paris" survives`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "regex fallback for misspelling",
			raw:   `reply was "anwser": "Paris" with no braces`,
			want:  "Paris",
			found: true,
		},
		{
			name:  "no answer at all",
			raw:   `I cannot answer that question.`,
			found: false,
		},
		{
			name:  "empty input",
			raw:   "",
			found: false,
		},
		{
			name:  "braces without answer key",
			raw:   `{"result": "Paris"}`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Extract(tt.raw)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPrefersStructuredOverRegex(t *testing.T) {
	// The braces parse, so the structured path wins even though a regex
	// match exists elsewhere in the text.
	raw := `"answer": "wrong" {"answer": "right"}`
	got, found := Extract(raw)
	assert.True(t, found)
	assert.Equal(t, "right", got)
}

func TestExtractJudgementWords(t *testing.T) {
	got, found := Extract(`{"answer": "false"}`)
	assert.True(t, found)
	assert.Equal(t, "false", got)
}
