package interview

import (
	"math/rand"

	"github.com/hireloop/interviewd/internal/model"
)

// buildSelection samples up to perTier question ids per difficulty tier
// for every round. Sampling is an unbiased shuffle without replacement; a
// tier with fewer questions than perTier contributes all of them. The
// result is frozen into the session at creation and never recomputed.
func buildSelection(rounds []model.RoundView, perTier int) model.QuestionSelection {
	selection := make(model.QuestionSelection, len(rounds))
	for _, rv := range rounds {
		selection[rv.Round.ID] = model.TierSelection{
			Easy:   sampleTier(rv.Questions, model.DifficultyEasy, perTier),
			Medium: sampleTier(rv.Questions, model.DifficultyMedium, perTier),
			Hard:   sampleTier(rv.Questions, model.DifficultyHard, perTier),
		}
	}
	return selection
}

func sampleTier(questions []model.Question, tier model.Difficulty, n int) []string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.Difficulty == tier {
			ids = append(ids, q.ID)
		}
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
