package models

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

type Difficulty string

const (
	DifficultyUnset  Difficulty = ""
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// FSRSRating maps a difficulty onto the FSRS rating scale.
func (d Difficulty) FSRSRating() (fsrs.Rating, bool) {
	switch d {
	case DifficultyEasy:
		return fsrs.Easy, true
	case DifficultyMedium:
		return fsrs.Good, true
	case DifficultyHard:
		return fsrs.Hard, true
	}
	return 0, false
}

type StudyMode string

const (
	ModeAll       StudyMode = "all"
	ModeDifficult StudyMode = "difficult"
	ModeReview    StudyMode = "review"
)

func (m StudyMode) Valid() bool {
	switch m {
	case ModeAll, ModeDifficult, ModeReview:
		return true
	}
	return false
}

const (
	MaxMastery       = 100
	MasteredLevel    = 80
	DifficultMastery = 50
)

type Flashcard struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Difficulty     Difficulty `json:"difficulty,omitempty"`
	ReviewCount    int        `json:"reviewCount"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	MasteryLevel   int        `json:"masteryLevel"`

	// Schedule is the FSRS state advanced alongside every rating.
	Schedule fsrs.Card `json:"-"`
}

// NewFlashcard returns an unrated card with a fresh FSRS schedule.
func NewFlashcard(id, question, answer string) Flashcard {
	return Flashcard{
		ID:       id,
		Question: question,
		Answer:   answer,
		Schedule: fsrs.NewCard(),
	}
}

// Due returns the next suggested review time, if the card has been reviewed.
func (c Flashcard) Due() *time.Time {
	if c.ReviewCount == 0 || c.Schedule.Due.IsZero() {
		return nil
	}
	due := c.Schedule.Due
	return &due
}

// Clone copies the card including its pointer fields.
func (c Flashcard) Clone() Flashcard {
	if c.LastReviewedAt != nil {
		ts := *c.LastReviewedAt
		c.LastReviewedAt = &ts
	}
	return c
}

type StudyStats struct {
	Total    int `json:"total"`
	Unrated  int `json:"unrated"`
	Easy     int `json:"easy"`
	Medium   int `json:"medium"`
	Hard     int `json:"hard"`
	Mastered int `json:"mastered"`
}

type UploadStatus string

const (
	UploadSucceeded UploadStatus = "ok"
	UploadFailed    UploadStatus = "error"
)

// UploadRecord is one row of the upload history ledger.
type UploadRecord struct {
	ID          int64
	SessionID   string
	Name        string
	ContentType string
	Format      string
	TextChars   int
	CardCount   int
	Generator   string
	Status      UploadStatus
	ErrorKind   string
	UploadedAt  time.Time
}

// ReviewRecord is one rating event in the history ledger.
type ReviewRecord struct {
	ID            int64
	SessionID     string
	CardID        string
	Difficulty    Difficulty
	MasteryLevel  int
	ReviewCount   int
	ScheduledDays int
	ReviewedAt    time.Time
}
