// heuristics.go — Deterministic document scoring.
// Scoring is a pure function of the inspection and OCR results: same inputs
// always produce the same confidence and flags, so stored verifications can
// be re-derived during review.
package verify

import (
	"regexp"
	"strings"

	"github.com/docverify/docverify/internal/imagecheck"
	"github.com/docverify/docverify/internal/ocr"
)

// HeuristicResult is the outcome of the rule-based scoring stage.
type HeuristicResult struct {
	Confidence float64
	Flags      []string
}

// startConfidence is the score before any penalty applies.
const startConfidence = 0.9

// fraudKeywordRE matches words that appear on specimen or voided documents
// but never on genuine ones.
var fraudKeywordRE = regexp.MustCompile(`(?i)\b(specimen|sample|void|copy|duplicate|not valid|training|test document)\b`)

// expectedKeywords lists terms a genuine document of the given type is
// expected to contain somewhere in its OCR text. Types not listed carry no
// expectation.
var expectedKeywords = map[string][]string{
	"passport":       {"passport", "nationality", "date of birth"},
	"id_card":        {"identity", "id", "date of birth"},
	"driver_license": {"driver", "license", "licence"},
	"invoice":        {"invoice", "total", "amount"},
	"receipt":        {"receipt", "total", "paid"},
	"certificate":    {"certificate", "certified", "awarded"},
}

// minDimension is the side length below which an image is too small to be a
// usable document scan.
const minDimension = 300

// ScoreDocument applies the fixed-penalty rules in order and returns the
// heuristic confidence (floored at 0) with the flags that fired.
func ScoreDocument(docType string, insp imagecheck.Inspection, ocrRes ocr.Result) HeuristicResult {
	confidence := startConfidence
	var flags []string

	penalize := func(amount float64, flag string) {
		confidence -= amount
		if confidence < 0 {
			confidence = 0
		}
		flags = append(flags, flag)
	}

	if len(insp.SoftwareTraces) > 0 {
		penalize(0.3, "edited_software_trace")
	}

	if m := fraudKeywordRE.FindString(ocrRes.Text); m != "" {
		penalize(0.3, "fraud_keyword:"+strings.ToLower(m))
	}

	text := strings.ToLower(ocrRes.Text)
	if expected, ok := expectedKeywords[docType]; ok && text != "" {
		found := false
		for _, kw := range expected {
			if strings.Contains(text, kw) {
				found = true
				break
			}
		}
		if !found {
			penalize(0.2, "expected_keywords_missing")
		}
	}

	if ocrRes.Text != "" && ocrRes.MeanConfidence < 40 {
		penalize(0.2, "low_ocr_confidence")
	}

	// PDFs skip decoding, so zero dimensions there mean "unknown", not tiny.
	if insp.Width > 0 && insp.Height > 0 && (insp.Width < minDimension || insp.Height < minDimension) {
		penalize(0.2, "low_resolution")
	}

	if strings.TrimSpace(ocrRes.Text) == "" && docType != "photo" {
		penalize(0.2, "no_text_extracted")
	}

	return HeuristicResult{Confidence: confidence, Flags: flags}
}
