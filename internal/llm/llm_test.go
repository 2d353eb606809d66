package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "clean array",
			raw:  `["q1", "q2"]`,
			want: []string{"q1", "q2"},
		},
		{
			name: "markdown fenced",
			raw:  "```json\n[\"q1\", \"q2\"]\n```",
			want: []string{"q1", "q2"},
		},
		{
			name: "surrounding prose",
			raw:  "Here are the questions:\n[\"q1\"]\nLet me know if you need more.",
			want: []string{"q1"},
		},
		{
			name:    "no array",
			raw:     "I cannot generate questions.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := extractJSONArray(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got payload %q", payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONArray: %v", err)
			}
			var got []string
			if err := json.Unmarshal([]byte(payload), &got); err != nil {
				t.Fatalf("unmarshal extracted payload: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d items, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("item %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	raw := "Sure! Here is the evaluation:\n```json\n{\"score\": 7.5, \"feedback\": \"good\", \"strengths\": [\"a\"], \"weaknesses\": [\"b\"]}\n```"
	payload, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("extractJSONObject: %v", err)
	}
	var eval Evaluation
	if err := json.Unmarshal([]byte(payload), &eval); err != nil {
		t.Fatalf("unmarshal evaluation: %v", err)
	}
	if eval.Score != 7.5 || eval.Feedback != "good" {
		t.Errorf("unexpected evaluation: %+v", eval)
	}

	if _, err := extractJSONObject("no object here"); err == nil {
		t.Error("expected error for output without an object")
	}
}

func TestExtractJSONObjectNestedBraces(t *testing.T) {
	// The object may itself contain braces in string values; the extractor
	// spans first '{' to last '}'.
	raw := `{"feedback": "use map[string]int{} here", "score": 5}`
	payload, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("extractJSONObject: %v", err)
	}
	var eval Evaluation
	if err := json.Unmarshal([]byte(payload), &eval); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if eval.Score != 5 {
		t.Errorf("expected score 5, got %v", eval.Score)
	}
}
