package filetype

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Content types the order service cares about.
const (
	PDF  = "application/pdf"
	JPEG = "image/jpeg"
	JPG  = "image/jpg" // non-standard alias some browsers and servers still send
	PNG  = "image/png"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the content type from the leading bytes, falling back to the
// file name extension when the bytes are inconclusive.
func (d *Detector) Detect(name string, data []byte) FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := FileTypeInfo{
		MIMEType:  Normalize(mtype.String()),
		Extension: mtype.Extension(),
	}

	if info.MIMEType == "application/octet-stream" || info.MIMEType == "text/plain" {
		if byExt := Normalize(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); byExt != "" {
			log.Debug().Str("sniffed", info.MIMEType).Str("by_ext", byExt).Str("file", name).Msg("content sniff inconclusive, using extension")
			info.MIMEType = byExt
			info.Extension = strings.ToLower(filepath.Ext(name))
		}
	}

	info.Description = describe(info.MIMEType)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")
	return info
}

// Normalize lowercases a content type and strips parameters such as charset.
func Normalize(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsPDF reports whether the declared content type is a PDF.
func IsPDF(contentType string) bool { return Normalize(contentType) == PDF }

// IsImage reports whether the declared content type is an accepted raster image.
func IsImage(contentType string) bool {
	switch Normalize(contentType) {
	case JPEG, JPG, PNG:
		return true
	}
	return false
}

func describe(mimeType string) string {
	switch {
	case mimeType == PDF:
		return "PDF document"
	case mimeType == JPEG || mimeType == JPG:
		return "JPEG image"
	case mimeType == PNG:
		return "PNG image"
	case strings.HasPrefix(mimeType, "image/"):
		return "Image file"
	case strings.HasPrefix(mimeType, "text/"):
		return "Plain text file"
	default:
		return "Unsupported file type: " + mimeType
	}
}
