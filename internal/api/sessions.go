package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"flashdeck/internal/logger"
	"flashdeck/internal/models"
	"flashdeck/internal/services"
	"flashdeck/internal/study"
)

var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	id        string
	name      string
	generator string
	createdAt time.Time
	session   study.Session

	advance    study.Deferred
	advanceGen uint64
}

// SessionStore keeps the in-memory study sessions. Every mutation runs under
// one lock, including the auto-advance fired after a rating.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry

	delay   time.Duration
	history *services.HistoryService
	log     *logger.Logger
	now     func() time.Time
}

func NewSessionStore(autoAdvance time.Duration, history *services.HistoryService, log *logger.Logger) *SessionStore {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		delay:    autoAdvance,
		history:  history,
		log:      log,
		now:      time.Now,
	}
}

// Create loads cards into a new session stored under id.
func (s *SessionStore) Create(id, name, generator string, cards []models.Flashcard) (SessionView, error) {
	session, err := study.Load(cards)
	if err != nil {
		return SessionView{}, err
	}
	entry := &sessionEntry{
		id:        id,
		name:      name,
		generator: generator,
		createdAt: s.now().UTC(),
		session:   session,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = entry
	return entry.view(), nil
}

func (s *SessionStore) Get(id string) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	return entry.view(), nil
}

func (s *SessionStore) ToggleAnswer(id string) (SessionView, error) {
	return s.mutate(id, false, func(session study.Session) (study.Session, error) {
		return session.ToggleAnswer(), nil
	})
}

func (s *SessionStore) Next(id string) (SessionView, error) {
	return s.mutate(id, true, func(session study.Session) (study.Session, error) {
		return session.Next(), nil
	})
}

func (s *SessionStore) Previous(id string) (SessionView, error) {
	return s.mutate(id, true, func(session study.Session) (study.Session, error) {
		return session.Previous(), nil
	})
}

func (s *SessionStore) SetMode(id string, mode models.StudyMode) (SessionView, error) {
	return s.mutate(id, true, func(session study.Session) (study.Session, error) {
		return session.SetMode(mode)
	})
}

// Rate rates the current card and schedules the auto-advance. A rating made
// while an advance is pending replaces it.
func (s *SessionStore) Rate(ctx context.Context, id string, difficulty models.Difficulty) (SessionView, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return SessionView{}, ErrSessionNotFound
	}

	target, _ := entry.session.Current()
	next, err := entry.session.Rate(difficulty, s.now().UTC())
	if err != nil {
		s.mu.Unlock()
		return SessionView{}, err
	}
	entry.session = next
	s.scheduleAdvanceLocked(entry)
	view := entry.view()

	var rated models.Flashcard
	for _, card := range next.Cards() {
		if card.ID == target.ID {
			rated = card
			break
		}
	}
	s.mu.Unlock()

	if err := s.history.RecordReview(ctx, id, rated); err != nil {
		s.log.Error("record review history", "session", id, "card", rated.ID, "error", err)
	}
	return view, nil
}

// Delete discards the session and its pending auto-advance.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.cancelAdvanceLocked(entry)
	delete(s.sessions, id)
	return nil
}

// Close cancels every pending auto-advance.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.sessions {
		s.cancelAdvanceLocked(entry)
	}
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) mutate(id string, cancelAdvance bool, fn func(study.Session) (study.Session, error)) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	next, err := fn(entry.session)
	if err != nil {
		return SessionView{}, err
	}
	if cancelAdvance {
		s.cancelAdvanceLocked(entry)
	}
	entry.session = next
	return entry.view(), nil
}

// scheduleAdvanceLocked arms the auto-advance. The generation check under
// s.mu drops a callback that fired after a newer navigation took the lock.
func (s *SessionStore) scheduleAdvanceLocked(entry *sessionEntry) {
	if s.delay <= 0 {
		return
	}
	entry.advanceGen++
	gen := entry.advanceGen
	entry.advance.Schedule(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sessions[entry.id] != entry || entry.advanceGen != gen {
			return
		}
		entry.session = entry.session.Next()
		s.log.Debug("auto-advanced session", "session", entry.id, "index", entry.session.Index())
	})
}

func (s *SessionStore) cancelAdvanceLocked(entry *sessionEntry) {
	entry.advanceGen++
	entry.advance.Cancel()
}

func (e *sessionEntry) view() SessionView {
	session := e.session
	view := SessionView{
		ID:                 e.id,
		DocumentName:       e.name,
		Generator:          e.generator,
		CreatedAt:          e.createdAt,
		Mode:               session.Mode(),
		Index:              session.Index(),
		FilteredCount:      session.VisibleCount(),
		ShowAnswer:         session.ShowAnswer(),
		AutoAdvancePending: e.advance.Pending(),
		Stats:              session.Stats(),
	}
	revealed := ""
	if card, ok := session.Current(); ok {
		current := newCardView(card, session.ShowAnswer())
		view.Current = &current
		if session.ShowAnswer() {
			revealed = card.ID
		}
	}
	cards := session.Cards()
	view.Cards = make([]CardView, len(cards))
	for i, card := range cards {
		view.Cards[i] = newCardView(card, revealed != "" && card.ID == revealed)
	}
	return view
}

// SessionView is the JSON shape of a study session.
type SessionView struct {
	ID                 string            `json:"id"`
	DocumentName       string            `json:"documentName"`
	Generator          string            `json:"generator"`
	CreatedAt          time.Time         `json:"createdAt"`
	Mode               models.StudyMode  `json:"mode"`
	Index              int               `json:"index"`
	FilteredCount      int               `json:"filteredCount"`
	ShowAnswer         bool              `json:"showAnswer"`
	AutoAdvancePending bool              `json:"autoAdvancePending"`
	Current            *CardView         `json:"current"`
	Cards              []CardView        `json:"cards"`
	Stats              models.StudyStats `json:"stats"`
}

type CardView struct {
	ID             string            `json:"id"`
	Question       string            `json:"question"`
	Answer         string            `json:"answer,omitempty"`
	Difficulty     models.Difficulty `json:"difficulty,omitempty"`
	ReviewCount    int               `json:"reviewCount"`
	MasteryLevel   int               `json:"masteryLevel"`
	LastReviewedAt *time.Time        `json:"lastReviewedAt,omitempty"`
	Due            *time.Time        `json:"due,omitempty"`
}

func newCardView(card models.Flashcard, withAnswer bool) CardView {
	view := CardView{
		ID:             card.ID,
		Question:       card.Question,
		Difficulty:     card.Difficulty,
		ReviewCount:    card.ReviewCount,
		MasteryLevel:   card.MasteryLevel,
		LastReviewedAt: card.LastReviewedAt,
		Due:            card.Due(),
	}
	if withAnswer {
		view.Answer = card.Answer
	}
	return view
}
