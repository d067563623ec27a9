// Package ocr defines the text extraction stage of the verification
// pipeline. The production engine wraps Tesseract via gosseract; tests
// substitute a fake Engine. OCR failure is never fatal to a verification,
// callers flag it and continue.
package ocr

import "context"

// Result holds extracted text and the mean word confidence (0-100).
type Result struct {
	Text           string
	MeanConfidence float64
}

// Engine extracts text from image bytes.
type Engine interface {
	Extract(ctx context.Context, data []byte) (Result, error)
}
