package services

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"flashdeck/internal/logger"
)

var (
	// ErrUnsupportedFormat matches any *UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractionFailed matches any *ExtractionFailedError.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// Format is a document family the extractor knows how to read.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPTX Format = "pptx"
	FormatText Format = "text"
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

var formatsByType = map[string]Format{
	"application/pdf": FormatPDF,
	mimeDOCX:          FormatDOCX,
	mimePPTX:          FormatPPTX,
	"text/plain":      FormatText,
	"text/markdown":   FormatText,
	"text/x-markdown": FormatText,
	"text/csv":        FormatText,
}

var formatsByExt = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".pptx":     FormatPPTX,
	".txt":      FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".csv":      FormatText,
}

// UnsupportedFormatError carries the type string that could not be handled.
type UnsupportedFormatError struct {
	Type string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Type)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ExtractionFailedError reports which format failed to parse. The underlying
// cause is logged, not carried.
type ExtractionFailedError struct {
	Format Format
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("failed to extract text from %s", strings.ToUpper(string(e.Format)))
}

func (e *ExtractionFailedError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// Extractor turns uploaded documents into plain text.
type Extractor struct {
	log  *logger.Logger
	pdf  *PDFService
	docx *DOCXService
	pptx *PPTXService
	text *PlainTextService
}

// NewExtractor builds an extractor. inflateLimit caps how far a DOCX or PPTX
// archive may decompress; zero or less means DefaultInflateLimit.
func NewExtractor(log *logger.Logger, inflateLimit int64) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		log:  log,
		pdf:  NewPDFService(),
		docx: NewDOCXService(inflateLimit),
		pptx: NewPPTXService(inflateLimit),
		text: NewPlainTextService(),
	}
}

// Extract returns the trimmed text content of data.
func (e *Extractor) Extract(name, contentType string, data []byte) (string, error) {
	format, err := ResolveFormat(name, contentType, data)
	if err != nil {
		e.log.Warn("unsupported upload", "name", name, "contentType", contentType)
		return "", err
	}

	text, err := e.extract(format, data)
	if err != nil {
		e.log.Error("text extraction failed", "name", name, "format", format, "error", err)
		return "", &ExtractionFailedError{Format: format}
	}

	e.log.Info("extracted text", "name", name, "format", format, "chars", len([]rune(text)))
	return text, nil
}

// extract isolates each parser; a panic inside a third-party reader becomes an error.
func (e *Extractor) extract(format Format, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	switch format {
	case FormatPDF:
		return e.pdf.ExtractText(data)
	case FormatDOCX:
		return e.docx.ExtractText(data)
	case FormatPPTX:
		return e.pptx.ExtractText(data)
	case FormatText:
		return e.text.ExtractText(data)
	default:
		return "", fmt.Errorf("no extractor for %s", format)
	}
}

// ResolveFormat picks a format from the declared content type, then the
// filename extension, then the sniffed content type.
func ResolveFormat(name, contentType string, data []byte) (Format, error) {
	declared := normalizeType(contentType)
	if declared != "" && !isGenericType(declared) {
		if format, ok := formatsByType[declared]; ok {
			return format, nil
		}
		return "", &UnsupportedFormatError{Type: declared}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if format, ok := formatsByExt[ext]; ok {
		return format, nil
	}

	if len(data) > 0 {
		for m := mimetype.Detect(data); m != nil; m = m.Parent() {
			if format, ok := formatsByType[normalizeType(m.String())]; ok {
				return format, nil
			}
		}
	}

	switch {
	case declared != "":
		return "", &UnsupportedFormatError{Type: declared}
	case ext != "":
		return "", &UnsupportedFormatError{Type: ext}
	default:
		return "", &UnsupportedFormatError{Type: "unknown"}
	}
}

func normalizeType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(contentType)
}

func isGenericType(mediaType string) bool {
	switch mediaType {
	case "application/octet-stream", "binary/octet-stream", "application/unknown":
		return true
	}
	return false
}
