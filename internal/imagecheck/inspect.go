// Package imagecheck performs the first verification stage: decoding image
// metadata and scanning for traces of editing software. It never renders
// PDFs; those are flagged so later stages know pixel data is unavailable.
package imagecheck

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"golang.org/x/image/webp"
)

// Inspection is the structural summary of an uploaded file.
type Inspection struct {
	Format         string   `json:"format"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	SoftwareTraces []string `json:"software_traces,omitempty"`
	Flags          []string `json:"flags,omitempty"`
}

// softwareMarkers are byte sequences that editing tools leave in EXIF,
// XMP, or tool-specific chunks. Matching is case-sensitive on purpose:
// these are the strings the tools actually write.
var softwareMarkers = []string{
	"Adobe Photoshop",
	"GIMP",
	"Canva",
	"Photopea",
}

// scanLimit bounds the metadata scan. Editing markers live in headers,
// not pixel data, so the first 512 KiB is enough.
const scanLimit = 512 * 1024

var creatorToolRE = regexp.MustCompile(`<xmp:CreatorTool>([^<]{1,200})</xmp:CreatorTool>`)

// Inspect examines file bytes and returns the structural inspection.
// mimeType is the sniffed type from upload validation; it decides the
// decode path. Decode failures are recorded as flags, not errors, so
// the pipeline can continue on heuristics alone.
func Inspect(data []byte, mimeType string) Inspection {
	insp := Inspection{Format: formatName(mimeType)}

	switch mimeType {
	case "image/jpeg", "image/png":
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			insp.Flags = append(insp.Flags, "decode_failed")
		} else {
			insp.Width = cfg.Width
			insp.Height = cfg.Height
		}
	case "image/webp":
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			insp.Flags = append(insp.Flags, "decode_failed")
		} else {
			insp.Width = cfg.Width
			insp.Height = cfg.Height
		}
	case "application/pdf":
		// No rasterizer; OCR and dimension checks don't apply.
		insp.Flags = append(insp.Flags, "pdf_unrendered")
	default:
		insp.Flags = append(insp.Flags, "decode_failed")
	}

	insp.SoftwareTraces = scanSoftwareTraces(data)

	return insp
}

// scanSoftwareTraces looks for editing tool markers in the file header.
// Returns the distinct markers found, in marker-list order, plus any XMP
// CreatorTool value not already covered by a marker.
func scanSoftwareTraces(data []byte) []string {
	head := data
	if len(head) > scanLimit {
		head = head[:scanLimit]
	}

	var traces []string
	for _, marker := range softwareMarkers {
		if bytes.Contains(head, []byte(marker)) {
			traces = append(traces, marker)
		}
	}

	if m := creatorToolRE.FindSubmatch(head); m != nil {
		tool := strings.TrimSpace(string(m[1]))
		if tool != "" && !containsFold(traces, tool) {
			traces = append(traces, fmt.Sprintf("CreatorTool:%s", tool))
		}
	}

	return traces
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.Contains(strings.ToLower(s), strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func formatName(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "application/pdf":
		return "pdf"
	}
	return "unknown"
}
