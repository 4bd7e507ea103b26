package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBodyPart = "word/document.xml"

	// DefaultInflateLimit caps the bytes one OOXML upload may decompress to.
	DefaultInflateLimit = 200 << 20
	// InflateRatio derives the decompression cap from the upload size limit.
	InflateRatio = 10
)

var errArchiveTooLarge = errors.New("archive expands beyond the size limit")

type DOCXService struct {
	inflateLimit int64
}

func NewDOCXService(inflateLimit int64) *DOCXService {
	return &DOCXService{inflateLimit: normalizeInflateLimit(inflateLimit)}
}

// ExtractText returns the raw text of the document body: run text, tabs and
// breaks as whitespace, one blank line after every paragraph.
func (s *DOCXService) ExtractText(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	part := findZipFile(zr, docxBodyPart)
	if part == nil {
		return "", fmt.Errorf("docx is missing %s", docxBodyPart)
	}
	budget := &inflateBudget{remaining: s.inflateLimit}
	rc, err := budget.open(part)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var builder strings.Builder
	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBodyPart, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &el); err != nil {
					return "", fmt.Errorf("decode text run: %w", err)
				}
				builder.WriteString(text)
			case "tab":
				builder.WriteString("\t")
			case "br", "cr":
				builder.WriteString("\n")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				builder.WriteString("\n\n")
			}
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	return zr, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func normalizeInflateLimit(limit int64) int64 {
	if limit <= 0 {
		return DefaultInflateLimit
	}
	return limit
}

// inflateBudget is the number of decompressed bytes a single document may
// still read, shared by every entry opened through it.
type inflateBudget struct {
	remaining int64
}

func (b *inflateBudget) open(f *zip.File) (io.ReadCloser, error) {
	if f.UncompressedSize64 > uint64(b.remaining) {
		return nil, fmt.Errorf("%s: %w", f.Name, errArchiveTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	return &budgetReader{ReadCloser: rc, budget: b, name: f.Name}, nil
}

func (b *inflateBudget) read(f *zip.File) ([]byte, error) {
	rc, err := b.open(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// budgetReader fails once the entry reads past the budget, whatever size its
// header declared.
type budgetReader struct {
	io.ReadCloser
	budget *inflateBudget
	name   string
}

func (r *budgetReader) Read(p []byte) (int, error) {
	if limit := r.budget.remaining + 1; int64(len(p)) > limit {
		p = p[:limit]
	}
	n, err := r.ReadCloser.Read(p)
	r.budget.remaining -= int64(n)
	if r.budget.remaining < 0 {
		return n, fmt.Errorf("%s: %w", r.name, errArchiveTooLarge)
	}
	return n, err
}
