// Package detector classifies uploaded statement files as CSV, spreadsheet or PDF
// and validates filenames against the supported set.
package detector

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Kind is the parser family a file is routed to.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
	KindPDF  Kind = "pdf"
)

// AllowedExtensions is the allow-list shared by Detect and ValidateFilename.
var AllowedExtensions = []string{"csv", "xlsx", "xls", "pdf"}

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidFilename     = errors.New("invalid filename")
)

const (
	mimeCSV       = "text/csv"
	mimeXLSX      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeLegacyXLS = "application/vnd.ms-excel"
	mimePDF       = "application/pdf"
)

var (
	magicPDF  = []byte("%PDF")
	magicZIP  = []byte("PK")
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// Detection is the outcome of Detect.
type Detection struct {
	Kind Kind   `json:"kind"`
	Ext  string `json:"ext"`
	MIME string `json:"mime"`
	// Legacy is set for BIFF .xls workbooks, which need the legacy reader.
	Legacy bool `json:"legacy,omitempty"`
}

// Detect classifies a file by declared MIME type, then extension, then magic
// bytes when data is available.
func Detect(filename, contentType string, data []byte) (Detection, error) {
	ext := Extension(filename)

	if kind, ok := kindFromMIME(contentType); ok {
		return newDetection(kind, ext, contentType, data), nil
	}

	if ext != "" {
		kind, ok := kindFromExtension(ext)
		if !ok {
			return Detection{}, unsupported(ext)
		}
		return newDetection(kind, ext, "", data), nil
	}

	if len(data) > 0 {
		return newDetection(sniff(data), "", "", data), nil
	}

	return Detection{}, unsupported(filename)
}

// ValidateFilename rejects empty names and extensions outside AllowedExtensions.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidFilename)
	}
	ext := Extension(filename)
	if _, ok := kindFromExtension(ext); !ok {
		return unsupported(ext)
	}
	return nil
}

// Extension returns the lower-cased suffix after the last dot, or "".
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}

func kindFromMIME(contentType string) (Kind, bool) {
	ct := strings.ToLower(contentType)
	switch {
	case ct == "":
		return "", false
	case strings.Contains(ct, mimeCSV):
		return KindCSV, true
	case strings.Contains(ct, mimeXLSX), strings.Contains(ct, mimeLegacyXLS):
		return KindXLSX, true
	case strings.Contains(ct, mimePDF):
		return KindPDF, true
	}
	return "", false
}

func kindFromExtension(ext string) (Kind, bool) {
	switch ext {
	case "csv":
		return KindCSV, true
	case "xlsx", "xls":
		return KindXLSX, true
	case "pdf":
		return KindPDF, true
	}
	return "", false
}

func sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return KindPDF
	case bytes.HasPrefix(data, magicZIP), bytes.HasPrefix(data, magicOLE2):
		return KindXLSX
	default:
		return KindCSV
	}
}

func newDetection(kind Kind, ext, mime string, data []byte) Detection {
	if ext == "" {
		ext = string(kind)
	}
	if mime == "" {
		mime = canonicalMIME(kind, ext)
	}
	d := Detection{Kind: kind, Ext: ext, MIME: mime}
	if kind == KindXLSX {
		d.Legacy = bytes.HasPrefix(data, magicOLE2) || (len(data) == 0 && ext == "xls")
	}
	return d
}

func canonicalMIME(kind Kind, ext string) string {
	switch kind {
	case KindCSV:
		return mimeCSV
	case KindPDF:
		return mimePDF
	}
	if ext == "xls" {
		return mimeLegacyXLS
	}
	return mimeXLSX
}

func unsupported(what string) error {
	if what == "" {
		what = "(none)"
	}
	return fmt.Errorf("%w %q: allowed types are %s", ErrUnsupportedFileType, what, strings.Join(AllowedExtensions, ", "))
}
