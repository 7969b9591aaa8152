package services

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// permutation returns a uniform Fisher-Yates permutation of [0, n).
func permutation(n int, rnd *rand.Rand) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// materialize builds the session's question list. The same seed over the
// same question set always yields the same order. Multiple choice copies
// pin their correct options by text before the options are shuffled.
func materialize(questions []*models.Question, rules models.QuizRules, seed int64) ([]*models.Question, error) {
	rnd := rand.New(rand.NewSource(seed))

	out := make([]*models.Question, len(questions))
	for i, q := range questions {
		cp := *q
		cp.Options = slices.Clone(q.Options)
		if q.Type == models.QuestionMultipleChoice {
			canonical, err := q.CanonicalCorrectAnswers()
			if err != nil {
				return nil, err
			}
			cp.ResolvedAnswer = canonical
		}
		out[i] = &cp
	}

	if rules.RandomizeQuestions {
		order := permutation(len(out), rnd)
		shuffled := make([]*models.Question, len(out))
		for i, idx := range order {
			shuffled[i] = out[idx]
		}
		out = shuffled
	}

	if rules.RandomizeAnswers {
		for _, q := range out {
			if q.Type != models.QuestionMultipleChoice || len(q.Options) < 2 {
				continue
			}
			order := permutation(len(q.Options), rnd)
			options := make([]string, len(q.Options))
			for i, idx := range order {
				options[i] = q.Options[idx]
			}
			q.Options = options
		}
	}

	seen := make(map[string]bool, len(out))
	for _, q := range out {
		if seen[q.ID] {
			return nil, fmt.Errorf("question %s listed twice", q.ID)
		}
		seen[q.ID] = true
	}
	return out, nil
}
