// pipeline.go — The six-stage verification pipeline.
// Order is fixed: inspect → OCR → heuristics → model → parse → combine.
// Every stage after inspection is allowed to degrade; only unusable bytes
// abort a run.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docverify/docverify/internal/gemini"
	"github.com/docverify/docverify/internal/imagecheck"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/internal/ocr"
)

// pipelineTimeout bounds one full verification run.
const pipelineTimeout = 60 * time.Second

// ocrExcerptLimit caps stored and prompted OCR text.
const ocrExcerptLimit = 2000

// ModelClient is the slice of the Gemini client the pipeline needs.
type ModelClient interface {
	AssessDocument(ctx context.Context, prompt string, imageData []byte, imageMIME string) (gemini.Verdict, string, error)
	Model() string
}

// PipelineResult is the combined outcome of one verification run.
type PipelineResult struct {
	Verdict    string
	Confidence float64
	Source     string // "full" or "heuristic_only"
	Flags      []string
	OCRExcerpt string
	ModelReply string
	ModelName  string
	Inspection imagecheck.Inspection
}

// errUndecodableImage aborts a run whose bytes cannot be decoded as the
// declared image format. Later stages would only hallucinate on garbage.
var errUndecodableImage = errors.New("image data could not be decoded")

// runPipeline executes all stages against the document bytes and returns the
// combined verdict. Degraded stages surface as flags in the result; the only
// error is errUndecodableImage from stage one.
func (s *Server) runPipeline(ctx context.Context, docType string, data []byte, mimeType string) (PipelineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, pipelineTimeout)
	defer cancel()

	// Stage 1: structural inspection.
	start := time.Now()
	insp := imagecheck.Inspect(data, mimeType)
	metrics.StageDuration.WithLabelValues("inspect").Observe(time.Since(start).Seconds())
	for _, f := range insp.Flags {
		if f == "decode_failed" {
			return PipelineResult{Flags: insp.Flags, Inspection: insp}, errUndecodableImage
		}
	}

	// Stage 2: text extraction. Failure is non-fatal.
	start = time.Now()
	var ocrRes ocr.Result
	var ocrFlags []string
	if s.ocr == nil {
		ocrFlags = append(ocrFlags, "ocr_unavailable")
	} else if res, err := s.ocr.Extract(ctx, data); err != nil {
		s.log.WithError(err).Warn("OCR extraction failed, continuing without text")
		ocrFlags = append(ocrFlags, "ocr_unavailable")
	} else {
		ocrRes = res
	}
	metrics.StageDuration.WithLabelValues("ocr").Observe(time.Since(start).Seconds())

	// Stage 3: heuristic scoring.
	start = time.Now()
	heur := ScoreDocument(docType, insp, ocrRes)
	metrics.StageDuration.WithLabelValues("heuristics").Observe(time.Since(start).Seconds())

	excerpt := truncateRunes(ocrRes.Text, ocrExcerptLimit)
	flags := append(append([]string{}, ocrFlags...), heur.Flags...)

	// Stages 4+5: model verdict. Unavailability degrades to heuristic-only
	// with explicit provenance instead of a fabricated model answer.
	confidence := heur.Confidence
	source := "heuristic_only"
	authentic := true
	var modelReply, modelName string

	start = time.Now()
	if s.model == nil {
		flags = append(flags, "model_unavailable:unconfigured")
		metrics.ModelCalls.WithLabelValues("unconfigured").Inc()
	} else {
		prompt := buildPrompt(docType, insp, excerpt)
		var imageData []byte
		var imageMIME string
		if strings.HasPrefix(mimeType, "image/") {
			imageData, imageMIME = data, mimeType
		}
		verdict, reply, err := s.model.AssessDocument(ctx, prompt, imageData, imageMIME)
		modelReply = reply
		if err != nil {
			reason := gemini.ClassifyFailure(err)
			s.log.WithError(err).WithField("reason", reason).Warn("model call failed, falling back to heuristics")
			flags = append(flags, "model_unavailable:"+reason)
			metrics.ModelCalls.WithLabelValues(reason).Inc()
		} else {
			// Stage 6: combine. The stricter of the two scores wins.
			if verdict.Confidence < confidence {
				confidence = verdict.Confidence
			}
			authentic = verdict.Authentic
			source = "full"
			modelName = s.model.Model()
			flags = append(flags, verdict.Flags...)
			metrics.ModelCalls.WithLabelValues("ok").Inc()
		}
	}
	metrics.StageDuration.WithLabelValues("model").Observe(time.Since(start).Seconds())

	return PipelineResult{
		Verdict:    finalVerdict(authentic, confidence),
		Confidence: confidence,
		Source:     source,
		Flags:      flags,
		OCRExcerpt: excerpt,
		ModelReply: modelReply,
		ModelName:  modelName,
		Inspection: insp,
	}, nil
}

// finalVerdict maps the combined confidence to a verdict label.
func finalVerdict(authentic bool, confidence float64) string {
	switch {
	case authentic && confidence >= 0.5:
		return "genuine"
	case confidence >= 0.25:
		return "suspicious"
	default:
		return "fake"
	}
}

// buildPrompt renders the model instruction from the earlier stage outputs.
func buildPrompt(docType string, insp imagecheck.Inspection, ocrText string) string {
	var b strings.Builder
	b.WriteString("You are a document fraud analyst. Assess whether the following document is genuine.\n\n")
	fmt.Fprintf(&b, "Declared document type: %s\n", docType)
	fmt.Fprintf(&b, "File format: %s, dimensions: %dx%d\n", insp.Format, insp.Width, insp.Height)
	if len(insp.SoftwareTraces) > 0 {
		fmt.Fprintf(&b, "Editing software traces found in metadata: %s\n", strings.Join(insp.SoftwareTraces, ", "))
	}
	if ocrText != "" {
		fmt.Fprintf(&b, "\nExtracted text (OCR):\n%s\n", ocrText)
	} else {
		b.WriteString("\nNo text could be extracted.\n")
	}
	b.WriteString("\nAnswer ONLY with a JSON object of the form " +
		`{"authentic": bool, "confidence": number between 0 and 1, "reasoning": string, "flags": [string]}` +
		" and nothing else.")
	return b.String()
}

// truncateRunes shortens s to at most n runes without splitting one.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
