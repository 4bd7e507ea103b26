package study

import (
	"testing"
	"time"

	"flashdeck/internal/models"
)

func TestFilterDifficult(t *testing.T) {
	cards := makeCards(3)
	cards[0].MasteryLevel, cards[0].Difficulty = 10, models.DifficultyHard
	cards[1].MasteryLevel, cards[1].Difficulty = 60, models.DifficultyUnset
	cards[2].MasteryLevel, cards[2].Difficulty = 90, models.DifficultyEasy

	got := Filter(cards, models.ModeDifficult)
	if len(got) != 1 || got[0].ID != "card-0" {
		t.Fatalf("difficult = %v", ids(got))
	}

	// A hard rating keeps a card difficult even with high mastery.
	cards[2].Difficulty = models.DifficultyHard
	got = Filter(cards, models.ModeDifficult)
	if len(got) != 2 || got[1].ID != "card-2" {
		t.Fatalf("difficult = %v", ids(got))
	}
}

func TestFilterReview(t *testing.T) {
	cards := makeCards(3)
	cards[0].ReviewCount, cards[0].MasteryLevel = 1, 10
	cards[1].ReviewCount, cards[1].MasteryLevel = 0, 0
	cards[2].ReviewCount, cards[2].MasteryLevel = 2, 90

	got := Filter(cards, models.ModeReview)
	if len(got) != 1 || got[0].ID != "card-0" {
		t.Fatalf("review = %v", ids(got))
	}
}

func TestFilterAllIsIdentity(t *testing.T) {
	cards := makeCards(4)
	got := Filter(cards, models.ModeAll)
	if len(got) != 4 {
		t.Fatalf("all = %v", ids(got))
	}
	for i := range cards {
		if got[i].ID != cards[i].ID {
			t.Fatalf("order changed: %v", ids(got))
		}
	}
}

func TestComputeStats(t *testing.T) {
	cards := makeCards(5)
	cards[0].Difficulty, cards[0].MasteryLevel = models.DifficultyEasy, 80
	cards[1].Difficulty, cards[1].MasteryLevel = models.DifficultyEasy, 100
	cards[2].Difficulty, cards[2].MasteryLevel = models.DifficultyMedium, 79
	cards[3].Difficulty = models.DifficultyHard

	got := ComputeStats(cards)
	want := models.StudyStats{Total: 5, Unrated: 1, Easy: 2, Medium: 1, Hard: 1, Mastered: 2}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestSessionStatsFollowRatings(t *testing.T) {
	s := mustLoad(t, makeCards(2))
	before := s.Stats()
	if before.Unrated != 2 || before.Total != 2 {
		t.Fatalf("initial stats = %+v", before)
	}

	s, _ = s.Rate(models.DifficultyHard, time.Now())
	after := s.Stats()
	if after.Hard != 1 || after.Unrated != 1 {
		t.Fatalf("stats after rating = %+v", after)
	}
}

func ids(cards []models.Flashcard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}
