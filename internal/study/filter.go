package study

import "flashdeck/internal/models"

// Filter returns the cards visible in the given mode, in master order.
func Filter(cards []models.Flashcard, mode models.StudyMode) []models.Flashcard {
	if mode == models.ModeAll || mode == "" {
		return cards
	}
	out := make([]models.Flashcard, 0, len(cards))
	for _, card := range cards {
		if visible(card, mode) {
			out = append(out, card)
		}
	}
	return out
}

func visible(card models.Flashcard, mode models.StudyMode) bool {
	switch mode {
	case models.ModeDifficult:
		return card.Difficulty == models.DifficultyHard || card.MasteryLevel < models.DifficultMastery
	case models.ModeReview:
		return card.ReviewCount > 0 && card.MasteryLevel < models.MasteredLevel
	default:
		return true
	}
}

// visibleIndexes maps filtered positions back onto master positions.
func visibleIndexes(cards []models.Flashcard, mode models.StudyMode) []int {
	out := make([]int, 0, len(cards))
	for i, card := range cards {
		if visible(card, mode) {
			out = append(out, i)
		}
	}
	return out
}

// ComputeStats derives aggregate counts from cards.
func ComputeStats(cards []models.Flashcard) models.StudyStats {
	stats := models.StudyStats{Total: len(cards)}
	for _, card := range cards {
		switch card.Difficulty {
		case models.DifficultyEasy:
			stats.Easy++
		case models.DifficultyMedium:
			stats.Medium++
		case models.DifficultyHard:
			stats.Hard++
		default:
			stats.Unrated++
		}
		if card.MasteryLevel >= models.MasteredLevel {
			stats.Mastered++
		}
	}
	return stats
}
