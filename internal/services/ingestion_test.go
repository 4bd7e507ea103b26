package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"flashdeck/internal/db"
	"flashdeck/internal/models"
)

func newTestHistory(t *testing.T) *HistoryService {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewHistoryService(conn)
}

type progressStep struct {
	step    string
	current int
}

func TestIngestionProcessMock(t *testing.T) {
	history := newTestHistory(t)
	ing := NewIngestion(NewExtractor(nil, 0), NewGenerator(nil, 0, nil), history, nil)

	var steps []progressStep
	res, err := ing.ProcessWithProgress(context.Background(), Upload{
		SessionID:   "s-1",
		Name:        "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("  Photosynthesis converts light into chemical energy.\n"),
	}, func(step, message string, current, total int) {
		steps = append(steps, progressStep{step, current})
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Cards) != 4 || res.Generator != "mock" || res.Format != FormatText {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TextChars != len("Photosynthesis converts light into chemical energy.") {
		t.Fatalf("text chars = %d", res.TextChars)
	}

	want := []string{"extract", "generate", "complete"}
	if len(steps) != len(want) {
		t.Fatalf("progress steps = %+v", steps)
	}
	for i, step := range want {
		if steps[i].step != step {
			t.Fatalf("step %d = %s, want %s", i, steps[i].step, step)
		}
	}
	if steps[2].current != 100 {
		t.Fatalf("complete step at %d", steps[2].current)
	}

	uploads, err := history.RecentUploads(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentUploads: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d", len(uploads))
	}
	rec := uploads[0]
	if rec.SessionID != "s-1" || rec.Status != models.UploadSucceeded || rec.CardCount != 4 || rec.Format != "text" || rec.Generator != "mock" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestIngestionRejectsEmptyText(t *testing.T) {
	history := newTestHistory(t)
	llm := &fakeLLM{reply: twoCards}
	ing := NewIngestion(NewExtractor(nil, 0), fixedGenerator(llm), history, nil)

	_, err := ing.Process(context.Background(), Upload{Name: "blank.md", Data: []byte(" \n\t ")})
	var extractErr *ExtractionFailedError
	if !errors.As(err, &extractErr) || extractErr.Format != FormatText {
		t.Fatalf("expected ExtractionFailedError for text, got %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Fatal("generator must not be called for empty text")
	}

	uploads, _ := history.RecentUploads(context.Background(), 10)
	if len(uploads) != 1 || uploads[0].Status != models.UploadFailed || uploads[0].ErrorKind != "extraction_failed" {
		t.Fatalf("unexpected ledger rows: %+v", uploads)
	}
}

func TestIngestionErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		upload Upload
		llm    TextGenerator
		target error
		kind   string
	}{
		{
			name:   "unsupported",
			upload: Upload{Name: "photo.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
			target: ErrUnsupportedFormat,
			kind:   "unsupported_format",
		},
		{
			name:   "corrupt docx",
			upload: Upload{Name: "paper.docx", ContentType: mimeDOCX, Data: []byte("not a zip")},
			target: ErrExtractionFailed,
			kind:   "extraction_failed",
		},
		{
			name:   "generation",
			upload: Upload{Name: "notes.txt", Data: []byte("Mitochondria")},
			llm:    &fakeLLM{err: errors.New("quota exceeded")},
			target: ErrGenerationFailed,
			kind:   "generation_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := newTestHistory(t)
			ing := NewIngestion(NewExtractor(nil, 0), NewGenerator(tt.llm, 0, nil), history, nil)
			res, err := ing.Process(context.Background(), tt.upload)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
			if got := ErrorKind(err); got != tt.kind {
				t.Fatalf("ErrorKind = %s, want %s", got, tt.kind)
			}
			uploads, _ := history.RecentUploads(context.Background(), 10)
			if len(uploads) != 1 || uploads[0].ErrorKind != tt.kind {
				t.Fatalf("unexpected ledger rows: %+v", uploads)
			}
		})
	}
}

func TestIngestionWithoutHistory(t *testing.T) {
	ing := NewIngestion(NewExtractor(nil, 0), NewGenerator(nil, 0, nil), NewHistoryService(nil), nil)
	if _, err := ing.Process(context.Background(), Upload{Name: "a.csv", Data: []byte("term,definition")}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ErrorKind(errors.New("boom")) != "internal" || ErrorKind(nil) != "" {
		t.Fatal("unexpected ErrorKind fallback")
	}
}
