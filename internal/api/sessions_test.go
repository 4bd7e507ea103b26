package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"flashdeck/internal/models"
	"flashdeck/internal/study"
)

func threeCards() []models.Flashcard {
	return []models.Flashcard{
		models.NewFlashcard("c1", "Q1", "A1"),
		models.NewFlashcard("c2", "Q2", "A2"),
		models.NewFlashcard("c3", "Q3", "A3"),
	}
}

func waitForIndex(t *testing.T, store *SessionStore, id string, want int) SessionView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if view.Index == want && !view.AutoAdvancePending {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached index %d", want)
	return SessionView{}
}

func TestSessionStoreAutoAdvance(t *testing.T) {
	store := NewSessionStore(10*time.Millisecond, nil, nil)
	defer store.Close()

	if _, err := store.Create("s", "deck.txt", "mock", threeCards()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ToggleAnswer("s"); err != nil {
		t.Fatalf("ToggleAnswer: %v", err)
	}

	view, err := store.Rate(context.Background(), "s", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if view.Index != 0 || !view.AutoAdvancePending {
		t.Fatalf("rating must not move the cursor: %+v", view)
	}

	view = waitForIndex(t, store, "s", 1)
	if view.ShowAnswer {
		t.Fatal("auto-advance should hide the answer")
	}
}

func TestSessionStoreNavigationCancelsAdvance(t *testing.T) {
	store := NewSessionStore(20*time.Millisecond, nil, nil)
	defer store.Close()
	if _, err := store.Create("s", "deck.txt", "mock", threeCards()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Rate(context.Background(), "s", models.DifficultyEasy); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	view, err := store.Next("s")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if view.Index != 1 || view.AutoAdvancePending {
		t.Fatalf("unexpected view after next: %+v", view)
	}

	time.Sleep(60 * time.Millisecond)
	if view, _ := store.Get("s"); view.Index != 1 {
		t.Fatalf("cancelled advance still ran, index = %d", view.Index)
	}

	if _, err := store.Rate(context.Background(), "s", models.DifficultyEasy); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if _, err := store.SetMode("s", models.ModeAll); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if view, _ := store.Get("s"); view.Index != 0 {
		t.Fatalf("mode change should cancel the advance, index = %d", view.Index)
	}
}

func TestSessionStoreRepeatedRatingDebounces(t *testing.T) {
	store := NewSessionStore(30*time.Millisecond, nil, nil)
	defer store.Close()
	if _, err := store.Create("s", "deck.txt", "mock", threeCards()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, d := range []models.Difficulty{models.DifficultyHard, models.DifficultyEasy, models.DifficultyMedium} {
		if _, err := store.Rate(context.Background(), "s", d); err != nil {
			t.Fatalf("Rate %s: %v", d, err)
		}
	}

	view := waitForIndex(t, store, "s", 1)
	if view.Cards[0].ReviewCount != 3 {
		t.Fatalf("review count = %d", view.Cards[0].ReviewCount)
	}
	time.Sleep(90 * time.Millisecond)
	if view, _ := store.Get("s"); view.Index != 1 {
		t.Fatalf("superseded advances ran, index = %d", view.Index)
	}
}

func TestSessionStoreDeleteCancelsAdvance(t *testing.T) {
	store := NewSessionStore(10*time.Millisecond, nil, nil)
	if _, err := store.Create("s", "deck.txt", "mock", threeCards()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Rate(context.Background(), "s", models.DifficultyHard); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if err := store.Delete("s"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := store.Get("s"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("sessions = %d", store.Len())
	}
}

func TestSessionStoreErrors(t *testing.T) {
	store := NewSessionStore(0, nil, nil)

	if _, err := store.Create("s", "empty.txt", "mock", nil); !errors.Is(err, study.ErrNoCards) {
		t.Fatalf("expected ErrNoCards, got %v", err)
	}
	if _, err := store.Next("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Rate(context.Background(), "missing", models.DifficultyEasy); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := store.Create("s", "deck.txt", "mock", threeCards()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Rate(context.Background(), "s", "great"); !errors.Is(err, study.ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}
	if _, err := store.SetMode("s", "cram"); !errors.Is(err, study.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}

	view, err := store.Rate(context.Background(), "s", models.DifficultyEasy)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if view.AutoAdvancePending {
		t.Fatal("a zero delay disables the auto-advance")
	}
}

func TestSessionViewHidesAnswerUntilShown(t *testing.T) {
	store := NewSessionStore(0, nil, nil)
	view, err := store.Create("s", "deck.txt", "live", threeCards())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Current.Answer != "" {
		t.Fatal("answer visible before toggle")
	}
	for _, card := range view.Cards {
		if card.Answer != "" {
			t.Fatalf("card list leaks an unrevealed answer: %+v", card)
		}
	}
	view, _ = store.ToggleAnswer("s")
	if view.Current.Answer != "A1" {
		t.Fatalf("answer = %q", view.Current.Answer)
	}
	if view.Cards[0].Answer != "A1" || view.Cards[1].Answer != "" || view.Cards[2].Answer != "" {
		t.Fatalf("only the revealed card should carry its answer: %+v", view.Cards)
	}
	view, _ = store.Next("s")
	for _, card := range view.Cards {
		if card.Answer != "" {
			t.Fatalf("moving on should hide answers again: %+v", card)
		}
	}
	view, _ = store.Previous("s")
	view, _ = store.ToggleAnswer("s")
	view, _ = store.ToggleAnswer("s")
	if view.ShowAnswer || view.Current.Answer != "" {
		t.Fatal("second toggle should hide the answer again")
	}
}
