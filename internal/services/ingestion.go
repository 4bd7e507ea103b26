package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flashdeck/internal/logger"
	"flashdeck/internal/models"
)

// ProgressCallback is called during document processing to report progress
type ProgressCallback func(step, message string, current, total int)

// Upload is a single document handed to the pipeline.
type Upload struct {
	SessionID   string
	Name        string
	ContentType string
	Data        []byte
}

// Result is what a successful pipeline run produces.
type Result struct {
	SessionID string
	Name      string
	Format    Format
	TextChars int
	Generator string
	Cards     []models.Flashcard
}

// Ingestion coordinates text extraction, flashcard generation and the history ledger.
type Ingestion struct {
	extractor *Extractor
	generator *Generator
	history   *HistoryService
	log       *logger.Logger
}

func NewIngestion(extractor *Extractor, generator *Generator, history *HistoryService, log *logger.Logger) *Ingestion {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestion{
		extractor: extractor,
		generator: generator,
		history:   history,
		log:       log,
	}
}

// GeneratorMode reports "mock" or "live".
func (s *Ingestion) GeneratorMode() string {
	return s.generator.Mode()
}

func (s *Ingestion) Process(ctx context.Context, upload Upload) (*Result, error) {
	return s.ProcessWithProgress(ctx, upload, nil)
}

func (s *Ingestion) ProcessWithProgress(ctx context.Context, upload Upload, progress ProgressCallback) (*Result, error) {
	record := models.UploadRecord{
		SessionID:   upload.SessionID,
		Name:        upload.Name,
		ContentType: upload.ContentType,
		Generator:   s.generator.Mode(),
	}
	if format, err := ResolveFormat(upload.Name, upload.ContentType, upload.Data); err == nil {
		record.Format = string(format)
	}

	result, err := s.run(ctx, upload, progress, &record)
	if err != nil {
		record.Status = models.UploadFailed
		record.ErrorKind = ErrorKind(err)
	} else {
		record.Status = models.UploadSucceeded
		record.CardCount = len(result.Cards)
	}
	s.record(ctx, record)
	return result, err
}

func (s *Ingestion) run(ctx context.Context, upload Upload, progress ProgressCallback, record *models.UploadRecord) (*Result, error) {
	if progress != nil {
		progress("extract", "Extracting text from "+upload.Name, 0, 100)
	}

	text, err := s.extractor.Extract(upload.Name, upload.ContentType, upload.Data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		s.log.Warn("document contains no text", "name", upload.Name, "format", record.Format)
		return nil, &ExtractionFailedError{Format: Format(record.Format)}
	}
	record.TextChars = len([]rune(text))

	if progress != nil {
		progress("generate", fmt.Sprintf("Generating flashcards from %d characters", record.TextChars), 40, 100)
	}

	cards, err := s.generator.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress("complete", fmt.Sprintf("Created %d flashcards", len(cards)), 100, 100)
	}

	return &Result{
		SessionID: upload.SessionID,
		Name:      upload.Name,
		Format:    Format(record.Format),
		TextChars: record.TextChars,
		Generator: s.generator.Mode(),
		Cards:     cards,
	}, nil
}

func (s *Ingestion) record(ctx context.Context, rec models.UploadRecord) {
	if s.history == nil {
		return
	}
	rec.UploadedAt = time.Now().UTC()
	if err := s.history.RecordUpload(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Error("record upload history", "name", rec.Name, "error", err)
	}
}

// ErrorKind names the pipeline error category for logs and the history ledger.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	default:
		return "internal"
	}
}
