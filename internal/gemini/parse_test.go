package gemini

import (
	"context"
	"errors"
	"testing"
)

func TestParseVerdictPlain(t *testing.T) {
	reply := `{"authentic": true, "confidence": 0.87, "reasoning": "Layout and fonts consistent", "flags": []}`
	v, err := ParseVerdict(reply)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if !v.Authentic {
		t.Error("authentic = false, want true")
	}
	if v.Confidence != 0.87 {
		t.Errorf("confidence = %v, want 0.87", v.Confidence)
	}
	if v.Reasoning == "" {
		t.Error("reasoning is empty")
	}
}

func TestParseVerdictWrappedInProse(t *testing.T) {
	reply := "Here is my assessment:\n```json\n{\"authentic\": false, \"confidence\": 0.9, \"reasoning\": \"SPECIMEN watermark visible\", \"flags\": [\"watermark\"]}\n```\nLet me know if you need more."
	v, err := ParseVerdict(reply)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Authentic {
		t.Error("authentic = true, want false")
	}
	if len(v.Flags) != 1 || v.Flags[0] != "watermark" {
		t.Errorf("flags = %v, want [watermark]", v.Flags)
	}
}

func TestParseVerdictBracesInsideStrings(t *testing.T) {
	reply := `{"authentic": true, "confidence": 0.5, "reasoning": "contains {curly} text", "flags": []}`
	v, err := ParseVerdict(reply)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Reasoning != "contains {curly} text" {
		t.Errorf("reasoning = %q", v.Reasoning)
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	v, err := ParseVerdict(`{"authentic": true, "confidence": 1.7, "reasoning": "", "flags": []}`)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", v.Confidence)
	}

	v, err = ParseVerdict(`{"authentic": false, "confidence": -0.3, "reasoning": "", "flags": []}`)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Confidence != 0 {
		t.Errorf("confidence = %v, want clamped to 0", v.Confidence)
	}
}

func TestParseVerdictNoJSON(t *testing.T) {
	if _, err := ParseVerdict("I cannot assess this document."); !errors.Is(err, ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
	if _, err := ParseVerdict(""); !errors.Is(err, ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
	if _, err := ParseVerdict("{unclosed"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"parse", ErrNoJSON, "parse_error"},
		{"rate limit status", errors.New("googleapi: Error 429: quota exceeded"), "rate_limited"},
		{"resource exhausted", errors.New("rpc error: code = ResourceExhausted"), "rate_limited"},
		{"other", errors.New("connection refused"), "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailure(tc.err); got != tc.want {
				t.Errorf("ClassifyFailure(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
