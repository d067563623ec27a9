// sniff.go — Magic-byte detection for uploaded files.
// The declared Content-Type is never trusted on its own: the first bytes of
// the payload must agree with it before anything is persisted.
package documents

import "bytes"

// acceptedTypes maps the content types we accept to the file extension used
// when building object storage keys.
var acceptedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// sniffContentType identifies the payload by magic bytes. Returns "" when the
// payload matches none of the accepted formats.
func sniffContentType(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case len(data) >= 5 && bytes.Equal(data[:5], []byte("%PDF-")):
		return "application/pdf"
	default:
		return ""
	}
}

// extensionFor returns the storage key extension for an accepted content type.
func extensionFor(contentType string) string {
	return acceptedTypes[contentType]
}
