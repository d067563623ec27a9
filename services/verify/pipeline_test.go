package verify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/docverify/docverify/internal/gemini"
	"github.com/docverify/docverify/internal/ocr"
	"github.com/docverify/docverify/pkg/logging"
)

// fakeEngine returns canned OCR output.
type fakeEngine struct {
	res ocr.Result
	err error
}

func (f *fakeEngine) Extract(ctx context.Context, data []byte) (ocr.Result, error) {
	return f.res, f.err
}

// fakeModel returns a canned Gemini verdict.
type fakeModel struct {
	verdict gemini.Verdict
	reply   string
	err     error
	calls   int
}

func (f *fakeModel) AssessDocument(ctx context.Context, prompt string, imageData []byte, imageMIME string) (gemini.Verdict, string, error) {
	f.calls++
	return f.verdict, f.reply, f.err
}

func (f *fakeModel) Model() string { return "fake-model" }

func pipelineServer(engine ocr.Engine, model ModelClient) *Server {
	return &Server{ocr: engine, model: model, log: logging.NewLogger("verify-test")}
}

// testPNG returns a decodable 400x400 PNG, large enough to dodge the
// low-resolution penalty.
func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 400))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

// truncatedJPEG is a JPEG header with no image data behind it.
var truncatedJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestPipelineCombinesHeuristicAndModel(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: "PASSPORT nationality date of birth", MeanConfidence: 92}}
	model := &fakeModel{
		verdict: gemini.Verdict{Authentic: true, Confidence: 0.7, Reasoning: "looks fine"},
		reply:   `{"authentic":true,"confidence":0.7}`,
	}
	s := pipelineServer(engine, model)

	res, err := s.runPipeline(context.Background(), "passport", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if res.Source != "full" {
		t.Errorf("source = %q, want full", res.Source)
	}
	// Heuristic is 0.9; the model's 0.7 is lower and must win.
	if res.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7 (min of heuristic and model)", res.Confidence)
	}
	if res.Verdict != "genuine" {
		t.Errorf("verdict = %q, want genuine", res.Verdict)
	}
	if res.ModelReply == "" {
		t.Error("raw model reply should be preserved")
	}
	if res.ModelName != "fake-model" {
		t.Errorf("model name = %q, want fake-model", res.ModelName)
	}
}

func TestPipelineModelNotAuthentic(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: "PASSPORT nationality", MeanConfidence: 92}}
	model := &fakeModel{verdict: gemini.Verdict{Authentic: false, Confidence: 0.8}}
	s := pipelineServer(engine, model)

	res, err := s.runPipeline(context.Background(), "passport", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	// Not authentic but confidence ≥ 0.25 → suspicious.
	if res.Verdict != "suspicious" {
		t.Errorf("verdict = %q, want suspicious", res.Verdict)
	}
}

func TestPipelineModelFailureFallsBackToHeuristics(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: "PASSPORT nationality date of birth", MeanConfidence: 92}}
	model := &fakeModel{err: errors.New("googleapi: Error 429: rate limit exceeded")}
	s := pipelineServer(engine, model)

	res, err := s.runPipeline(context.Background(), "passport", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if res.Source != "heuristic_only" {
		t.Errorf("source = %q, want heuristic_only", res.Source)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want heuristic 0.9", res.Confidence)
	}
	found := false
	for _, f := range res.Flags {
		if f == "model_unavailable:rate_limited" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected model_unavailable:rate_limited flag, got %v", res.Flags)
	}
	if res.Verdict != "genuine" {
		t.Errorf("verdict = %q, want genuine from heuristics alone", res.Verdict)
	}
	if res.ModelName != "" {
		t.Errorf("model name should be empty on model failure, got %q", res.ModelName)
	}
}

func TestPipelineNoModelConfigured(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: "invoice total 12.50", MeanConfidence: 80}}
	s := pipelineServer(engine, nil)

	res, err := s.runPipeline(context.Background(), "invoice", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if res.Source != "heuristic_only" {
		t.Errorf("source = %q, want heuristic_only", res.Source)
	}
	found := false
	for _, f := range res.Flags {
		if f == "model_unavailable:unconfigured" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected model_unavailable:unconfigured flag, got %v", res.Flags)
	}
}

func TestPipelineOCRFailureIsNonFatal(t *testing.T) {
	engine := &fakeEngine{err: errors.New("tesseract not installed")}
	model := &fakeModel{verdict: gemini.Verdict{Authentic: true, Confidence: 0.9}}
	s := pipelineServer(engine, model)

	res, err := s.runPipeline(context.Background(), "photo", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	found := false
	for _, f := range res.Flags {
		if f == "ocr_unavailable" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ocr_unavailable flag, got %v", res.Flags)
	}
	if res.Source != "full" {
		t.Errorf("model should still run when OCR fails, source = %q", res.Source)
	}
}

func TestPipelineUndecodableBytesAbort(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: "should never be reached", MeanConfidence: 90}}
	model := &fakeModel{verdict: gemini.Verdict{Authentic: true, Confidence: 0.9}}
	s := pipelineServer(engine, model)

	res, err := s.runPipeline(context.Background(), "passport", truncatedJPEG, "image/jpeg")

	if !errors.Is(err, errUndecodableImage) {
		t.Fatalf("expected errUndecodableImage, got %v", err)
	}
	if res.Verdict != "" {
		t.Errorf("aborted run must not carry a verdict, got %q", res.Verdict)
	}
	if model.calls != 0 {
		t.Errorf("model must not be consulted for undecodable bytes, got %d calls", model.calls)
	}
	found := false
	for _, f := range res.Flags {
		if f == "decode_failed" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected decode_failed flag on aborted run, got %v", res.Flags)
	}
}

func TestFinalVerdictBoundaries(t *testing.T) {
	cases := []struct {
		authentic  bool
		confidence float64
		want       string
	}{
		{true, 0.9, "genuine"},
		{true, 0.5, "genuine"},
		{true, 0.49, "suspicious"},
		{false, 0.9, "suspicious"},
		{true, 0.25, "suspicious"},
		{true, 0.24, "fake"},
		{false, 0.1, "fake"},
		{false, 0, "fake"},
	}
	for _, tc := range cases {
		if got := finalVerdict(tc.authentic, tc.confidence); got != tc.want {
			t.Errorf("finalVerdict(%v, %v) = %q, want %q", tc.authentic, tc.confidence, got, tc.want)
		}
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	engine := &fakeEngine{res: ocr.Result{Text: strings.Repeat("x", 3000), MeanConfidence: 90}}
	s := pipelineServer(engine, nil)
	res, err := s.runPipeline(context.Background(), "photo", testPNG(t), "image/png")
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if len([]rune(res.OCRExcerpt)) != ocrExcerptLimit {
		t.Errorf("OCR excerpt should cap at %d runes, got %d", ocrExcerptLimit, len([]rune(res.OCRExcerpt)))
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo wörld", 5); got != "héllo" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 100); got != "short" {
		t.Errorf("truncateRunes should pass short strings through, got %q", got)
	}
}
