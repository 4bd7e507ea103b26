package services

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	slidePartPattern = regexp.MustCompile(`^ppt/slides/slide\d+\.xml$`)
	notesPartPattern = regexp.MustCompile(`^ppt/notesSlides/notesSlide\d+\.xml$`)
	textRunPattern   = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

	// &amp; is unescaped last, so "&amp;lt;" decodes to "&lt;".
	entityReplacer = []struct{ from, to string }{
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&amp;", "&"},
	}
)

type PPTXService struct {
	inflateLimit int64
}

func NewPPTXService(inflateLimit int64) *PPTXService {
	return &PPTXService{inflateLimit: normalizeInflateLimit(inflateLimit)}
}

// ExtractText emits one "=== Slide N ===" block per non-empty slide part, in
// archive order, followed by the speaker notes.
//
// Notes blocks are headed with the last slide number reached, not the slide
// the notes belong to.
func (s *PPTXService) ExtractText(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	budget := &inflateBudget{remaining: s.inflateLimit}
	var blocks []string
	slideNum := 0
	for _, f := range zr.File {
		if !slidePartPattern.MatchString(f.Name) {
			continue
		}
		slideNum++
		raw, err := budget.read(f)
		if err != nil {
			return "", err
		}
		if text := ExtractTextRuns(string(raw)); strings.TrimSpace(text) != "" {
			blocks = append(blocks, fmt.Sprintf("=== Slide %d ===\n%s", slideNum, text))
		}
	}

	for _, f := range zr.File {
		if !notesPartPattern.MatchString(f.Name) {
			continue
		}
		raw, err := budget.read(f)
		if err != nil {
			return "", err
		}
		if text := ExtractTextRuns(string(raw)); strings.TrimSpace(text) != "" {
			blocks = append(blocks, fmt.Sprintf("=== Notes for Slide %d ===\n%s", slideNum, text))
		}
	}

	return strings.TrimSpace(strings.Join(blocks, "\n\n")), nil
}

// ExtractTextRuns pulls the contents of every <a:t> run out of a DrawingML
// part and joins them with single spaces. It is a regex scan, not an XML
// parse: markup nested inside a run and entities other than &lt; &gt; &amp;
// come through untouched.
func ExtractTextRuns(xmlText string) string {
	matches := textRunPattern.FindAllStringSubmatch(xmlText, -1)
	if len(matches) == 0 {
		return ""
	}
	runs := make([]string, len(matches))
	for i, m := range matches {
		runs[i] = m[1]
	}
	text := strings.Join(runs, " ")
	for _, e := range entityReplacer {
		text = strings.ReplaceAll(text, e.from, e.to)
	}
	return text
}
