package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// DetectContentType maps a document filename to the MIME type the device
// web interface expects on upload. Unknown extensions fall back to the
// platform MIME table, then to octet-stream.
func DetectContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".epub":
		return "application/epub+zip"
	case ".pdf":
		return "application/pdf"
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(name)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
