package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"flashdeck/internal/logger"
	"flashdeck/internal/models"
)

var (
	// ErrGenerationFailed covers every way a live generation can go wrong.
	ErrGenerationFailed = errors.New("flashcard generation failed")
)

const (
	// MaxSourceChars bounds the excerpt sent to the model. Longer documents are truncated.
	MaxSourceChars = 2000
	mockPreviewLen = 100
)

var (
	jsonFenceOpen = regexp.MustCompile("```json\n?")
	jsonFence     = regexp.MustCompile("```\n?")
)

const promptTemplate = `Based on the following text, generate 8-12 flashcards for active recall learning. Return the flashcards as a JSON array, where each item is an object with a "question" and an "answer". The questions should be thought-provoking but not overly complex. Answers must be short, clear, and use simple language. Use identification (provide the definition as question and the terminology as answer), true/false, and multiple-choice questions where appropriate.

Format your response as a valid JSON array with this exact structure:
[
    {
        "question": "Your question here?",
        "answer": "Your answer here."
    }
]

Text content: %s

Respond with only the JSON array, no additional text or explanation.`

// Generator turns extracted text into flashcards. Without a TextGenerator it
// runs in mock mode and returns a fixed deck.
type Generator struct {
	llm     TextGenerator
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewGenerator(llm TextGenerator, timeout time.Duration, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		llm:     llm,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

// Mock reports whether the generator returns the fixed mock deck.
func (g *Generator) Mock() bool {
	return g.llm == nil
}

// Mode names the generator mode for API responses and the history ledger.
func (g *Generator) Mode() string {
	if g.Mock() {
		return "mock"
	}
	return "live"
}

type cardPrototype struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Generate returns the full deck or ErrGenerationFailed; there are no partial results.
func (g *Generator) Generate(ctx context.Context, text string) ([]models.Flashcard, error) {
	if g.Mock() {
		g.log.Warn("no generation credential configured, using mock flashcards")
		return MockFlashcards(text), nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	raw, err := g.llm.GenerateText(ctx, BuildPrompt(text))
	if err != nil {
		g.log.Error("generation request failed", "error", err)
		return nil, ErrGenerationFailed
	}

	protos, err := parseFlashcards(raw)
	if err != nil {
		g.log.Error("generation response rejected", "error", err, "raw", raw)
		return nil, ErrGenerationFailed
	}

	stamp := g.now().UnixMilli()
	cards := make([]models.Flashcard, len(protos))
	for i, p := range protos {
		cards[i] = models.NewFlashcard(fmt.Sprintf("card-%d-%d", stamp, i), p.Question, p.Answer)
	}
	g.log.Info("generated flashcards", "count", len(cards))
	return cards, nil
}

// BuildPrompt fills the instruction template with at most MaxSourceChars of text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, truncateRunes(text, MaxSourceChars))
}

// StripCodeFences removes ```json and ``` markers the model wraps around JSON.
func StripCodeFences(content string) string {
	content = jsonFenceOpen.ReplaceAllString(content, "")
	content = jsonFence.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

func parseFlashcards(raw string) ([]cardPrototype, error) {
	var protos []cardPrototype
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &protos); err != nil {
		return nil, fmt.Errorf("unmarshal flashcards json: %w", err)
	}
	if len(protos) == 0 {
		return nil, errors.New("model returned no flashcards")
	}
	for i := range protos {
		protos[i].Question = strings.TrimSpace(protos[i].Question)
		protos[i].Answer = strings.TrimSpace(protos[i].Answer)
		if protos[i].Question == "" || protos[i].Answer == "" {
			return nil, fmt.Errorf("flashcard %d is missing a question or answer", i)
		}
	}
	return protos, nil
}

// MockFlashcards is the fixed deck used when no model is configured. Two of
// the answers quote the start of the document.
func MockFlashcards(text string) []models.Flashcard {
	preview := truncateRunes(text, mockPreviewLen)
	return []models.Flashcard{
		models.NewFlashcard("mock-1",
			"What is the main topic discussed in this document?",
			fmt.Sprintf(`Based on the content: "%s..."`, preview)),
		models.NewFlashcard("mock-2",
			"What are the key concepts mentioned?",
			"This is a mock flashcard. Set GEMINI_API_KEY or OPENAI_API_KEY for AI-generated cards."),
		models.NewFlashcard("mock-3",
			"How would you summarize the first paragraph?",
			fmt.Sprintf(`The document begins with: "%s..."`, preview)),
		models.NewFlashcard("mock-4",
			"What type of document is this?",
			"This appears to be an educational or informational document based on the extracted content."),
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
