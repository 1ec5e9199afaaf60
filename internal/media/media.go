package media

import "strings"

// Content types the server knows how to serve
const (
	TextPlain = "text/plain"
	TextHTML  = "text/html"
	ImageJPEG = "image/jpeg"
	ImageGIF  = "image/gif"
)

var byExtension = map[string]string{
	".txt":  TextPlain,
	".html": TextHTML,
	".htm":  TextHTML,
	".jpg":  ImageJPEG,
	".jpeg": ImageJPEG,
	".gif":  ImageGIF,
}

// ForExtension returns the content type for a file extension (leading dot
// included). Matching is case-insensitive.
func ForExtension(ext string) (string, bool) {
	ct, ok := byExtension[strings.ToLower(ext)]
	return ct, ok
}

// IsText reports whether payloads of this type are served as text
func IsText(contentType string) bool {
	return contentType == TextPlain || contentType == TextHTML
}

// IsImage reports whether payloads of this type are served as raw bytes
func IsImage(contentType string) bool {
	return contentType == ImageJPEG || contentType == ImageGIF
}
