// tesseract.go — production OCR engine backed by Tesseract via gosseract.
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine extracts text with a local Tesseract installation.
// A fresh gosseract client is created per call; the CGo client is not
// safe for concurrent use.
type TesseractEngine struct {
	Language string // tesseract language code, e.g. "eng"
}

// NewTesseractEngine returns an engine for the given language.
// Empty language defaults to "eng".
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{Language: language}
}

// Extract runs Tesseract over the image bytes. The context deadline is
// checked before starting; Tesseract itself cannot be interrupted mid-run.
func (e *TesseractEngine) Extract(ctx context.Context, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.Language); err != nil {
		return Result{}, fmt.Errorf("ocr: set language %q: %w", e.Language, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return Result{}, fmt.Errorf("ocr: set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("ocr: extract text: %w", err)
	}

	res := Result{Text: text, MeanConfidence: meanWordConfidence(client)}
	return res, nil
}

// meanWordConfidence averages per-word confidences (0-100). Returns 0
// when no words were recognized.
func meanWordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
