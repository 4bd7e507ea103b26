package services

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// PlainTextService decodes .txt, .md and .csv uploads.
type PlainTextService struct{}

func NewPlainTextService() *PlainTextService {
	return &PlainTextService{}
}

// ExtractText decodes data as UTF-8, honouring a UTF-8 or UTF-16 byte order mark.
func (s *PlainTextService) ExtractText(data []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return strings.TrimSpace(string(decoded)), nil
}
