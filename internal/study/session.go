// Package study holds the review state machine for one generated deck.
//
// Every transition is a pure function of a Session value: it returns a new
// Session and leaves the receiver untouched, so callers can keep or discard
// states freely.
package study

import (
	"errors"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashdeck/internal/models"
)

var (
	ErrNoCards           = errors.New("study session needs at least one card")
	ErrNoCurrentCard     = errors.New("no card is visible in the current mode")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidMode       = errors.New("invalid study mode")
)

// State is either NoSession or an active Session.
type State interface {
	Active() bool
}

// NoSession is the state before a deck is loaded and after Reset.
type NoSession struct{}

func (NoSession) Active() bool { return false }

// Session is an active study session. The zero value is not usable; build one with Load.
type Session struct {
	cards      []models.Flashcard
	current    int
	showAnswer bool
	mode       models.StudyMode
}

func (Session) Active() bool { return true }

// Load starts a session over cards in "all" mode at the first card.
func Load(cards []models.Flashcard) (Session, error) {
	if len(cards) == 0 {
		return Session{}, ErrNoCards
	}
	return Session{
		cards: cloneCards(cards),
		mode:  models.ModeAll,
	}, nil
}

// Reset discards the session.
func (s Session) Reset() NoSession {
	return NoSession{}
}

func (s Session) ToggleAnswer() Session {
	s.showAnswer = !s.showAnswer
	return s
}

// Rate records a rating on the current visible card. It does not move the cursor.
func (s Session) Rate(difficulty models.Difficulty, now time.Time) (Session, error) {
	rating, ok := difficulty.FSRSRating()
	if !ok {
		return s, ErrInvalidDifficulty
	}
	idx, ok := s.currentMasterIndex()
	if !ok {
		return s, ErrNoCurrentCard
	}

	cards := cloneCards(s.cards)
	card := &cards[idx]
	card.Difficulty = difficulty
	card.ReviewCount++
	reviewed := now
	card.LastReviewedAt = &reviewed
	card.MasteryLevel = adjustMastery(card.MasteryLevel, difficulty)

	params := fsrs.DefaultParam()
	if info, ok := params.Repeat(card.Schedule, now)[rating]; ok {
		card.Schedule = info.Card
	}

	s.cards = cards
	return s, nil
}

// Next moves forward through the visible cards, wrapping at the end.
func (s Session) Next() Session {
	return s.step(1)
}

// Previous moves backward through the visible cards, wrapping at the start.
func (s Session) Previous() Session {
	return s.step(-1)
}

func (s Session) step(delta int) Session {
	s.showAnswer = false
	count := s.VisibleCount()
	if count == 0 {
		s.current = 0
		return s
	}
	current := s.current
	if current >= count {
		current = count - 1
	}
	s.current = ((current+delta)%count + count) % count
	return s
}

// SetMode switches the filter, rewinding to the first visible card with the answer hidden.
func (s Session) SetMode(mode models.StudyMode) (Session, error) {
	if !mode.Valid() {
		return s, ErrInvalidMode
	}
	s.mode = mode
	s.current = 0
	s.showAnswer = false
	return s, nil
}

// Cards returns a copy of the master card list.
func (s Session) Cards() []models.Flashcard {
	return cloneCards(s.cards)
}

func (s Session) VisibleCount() int {
	return len(Filter(s.cards, s.mode))
}

// Index is the cursor into the visible cards, normalized into range.
func (s Session) Index() int {
	count := s.VisibleCount()
	if count == 0 {
		return 0
	}
	if s.current >= count {
		return count - 1
	}
	return s.current
}

// Current returns the card under the cursor, if any card is visible.
func (s Session) Current() (models.Flashcard, bool) {
	idx, ok := s.currentMasterIndex()
	if !ok {
		return models.Flashcard{}, false
	}
	return s.cards[idx].Clone(), true
}

func (s Session) ShowAnswer() bool { return s.showAnswer }

func (s Session) Mode() models.StudyMode { return s.mode }

func (s Session) Stats() models.StudyStats {
	return ComputeStats(s.cards)
}

func (s Session) currentMasterIndex() (int, bool) {
	indexes := visibleIndexes(s.cards, s.mode)
	if len(indexes) == 0 {
		return 0, false
	}
	pos := s.current
	if pos >= len(indexes) {
		pos = len(indexes) - 1
	}
	return indexes[pos], true
}

func adjustMastery(level int, difficulty models.Difficulty) int {
	switch difficulty {
	case models.DifficultyEasy:
		level += 20
	case models.DifficultyMedium:
		level += 10
	case models.DifficultyHard:
		level -= 5
	}
	if level > models.MaxMastery {
		return models.MaxMastery
	}
	if level < 0 {
		return 0
	}
	return level
}

func cloneCards(cards []models.Flashcard) []models.Flashcard {
	out := make([]models.Flashcard, len(cards))
	for i, card := range cards {
		out[i] = card.Clone()
	}
	return out
}
