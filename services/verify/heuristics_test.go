package verify

import (
	"reflect"
	"testing"

	"github.com/docverify/docverify/internal/imagecheck"
	"github.com/docverify/docverify/internal/ocr"
)

func TestScoreDocument(t *testing.T) {
	cleanInsp := imagecheck.Inspection{Format: "jpeg", Width: 1200, Height: 900}
	passportText := ocr.Result{
		Text:           "REPUBLIC OF EXAMPLE\nPASSPORT\nNationality: Examplish\nDate of birth: 01 JAN 1990",
		MeanConfidence: 88,
	}

	cases := []struct {
		name      string
		docType   string
		insp      imagecheck.Inspection
		ocr       ocr.Result
		wantConf  float64
		wantFlags []string
	}{
		{
			name:    "clean passport keeps starting confidence",
			docType: "passport", insp: cleanInsp, ocr: passportText,
			wantConf: 0.9, wantFlags: nil,
		},
		{
			name:    "software trace penalized",
			docType: "passport",
			insp:    imagecheck.Inspection{Format: "jpeg", Width: 1200, Height: 900, SoftwareTraces: []string{"Adobe Photoshop"}},
			ocr:     passportText,
			wantConf: 0.6, wantFlags: []string{"edited_software_trace"},
		},
		{
			name:    "specimen keyword penalized with matched word",
			docType: "passport", insp: cleanInsp,
			ocr:      ocr.Result{Text: "PASSPORT nationality date of birth SPECIMEN", MeanConfidence: 90},
			wantConf: 0.6, wantFlags: []string{"fraud_keyword:specimen"},
		},
		{
			name:    "invoice without invoice words penalized",
			docType: "invoice", insp: cleanInsp,
			ocr:      ocr.Result{Text: "random unrelated writing", MeanConfidence: 85},
			wantConf: 0.7, wantFlags: []string{"expected_keywords_missing"},
		},
		{
			name:    "low OCR confidence penalized",
			docType: "photo", insp: cleanInsp,
			ocr:      ocr.Result{Text: "blurry words", MeanConfidence: 22},
			wantConf: 0.7, wantFlags: []string{"low_ocr_confidence"},
		},
		{
			name:    "tiny image penalized",
			docType: "passport",
			insp:    imagecheck.Inspection{Format: "png", Width: 120, Height: 90},
			ocr:     passportText,
			wantConf: 0.7, wantFlags: []string{"low_resolution"},
		},
		{
			name:    "no text on text-bearing type penalized",
			docType: "invoice", insp: cleanInsp,
			ocr:      ocr.Result{},
			wantConf: 0.7, wantFlags: []string{"no_text_extracted"},
		},
		{
			name:    "no text on photo is fine",
			docType: "photo", insp: cleanInsp,
			ocr:      ocr.Result{},
			wantConf: 0.9, wantFlags: nil,
		},
		{
			name:    "stacked penalties floor at zero",
			docType: "passport",
			insp:    imagecheck.Inspection{Format: "jpeg", Width: 100, Height: 100, SoftwareTraces: []string{"GIMP"}},
			ocr:     ocr.Result{Text: "VOID something unrelated", MeanConfidence: 10},
			// 0.9 − 0.3 − 0.3 − 0.2 − 0.2 − 0.2 floors at 0
			wantConf:  0,
			wantFlags: []string{"edited_software_trace", "fraud_keyword:void", "expected_keywords_missing", "low_ocr_confidence", "low_resolution"},
		},
		{
			// Empty text fires only the no-text penalty: the keyword and
			// OCR-confidence rules are gated on text being present.
			name:    "empty text penalized exactly once",
			docType: "invoice", insp: cleanInsp,
			ocr:       ocr.Result{Text: "", MeanConfidence: 0},
			wantConf:  0.7,
			wantFlags: []string{"no_text_extracted"},
		},
		{
			name:    "photo without text carries no penalty",
			docType: "photo", insp: cleanInsp,
			ocr:      ocr.Result{Text: "", MeanConfidence: 0},
			wantConf: 0.9, wantFlags: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreDocument(tc.docType, tc.insp, tc.ocr)
			if diff := got.Confidence - tc.wantConf; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %v, want %v", got.Confidence, tc.wantConf)
			}
			if !reflect.DeepEqual(got.Flags, tc.wantFlags) {
				t.Errorf("flags = %v, want %v", got.Flags, tc.wantFlags)
			}
		})
	}
}

func TestScoreDocumentDeterministic(t *testing.T) {
	insp := imagecheck.Inspection{Format: "jpeg", Width: 640, Height: 480, SoftwareTraces: []string{"Canva"}}
	res := ocr.Result{Text: "sample invoice total 42.00", MeanConfidence: 55}
	first := ScoreDocument("invoice", insp, res)
	for i := 0; i < 10; i++ {
		if got := ScoreDocument("invoice", insp, res); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed: %+v vs %+v", i, got, first)
		}
	}
}
