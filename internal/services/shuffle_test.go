package services

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedQuestions(n int) []*models.Question {
	questions := make([]*models.Question, n)
	for i := range questions {
		questions[i] = &models.Question{
			ID:            fmt.Sprintf("q%d", i),
			Type:          models.QuestionMultipleChoice,
			Options:       []string{"alpha", "beta", "gamma", "delta"},
			CorrectAnswer: "1",
			Points:        1,
			OrderIndex:    i,
		}
	}
	return questions
}

func ids(questions []*models.Question) []string {
	out := make([]string, len(questions))
	for i, q := range questions {
		out[i] = q.ID
	}
	return out
}

func TestMaterialize_KeepsAuthoredOrderWithoutRandomization(t *testing.T) {
	source := mixedQuestions(6)

	out, err := materialize(source, models.QuizRules{}, 42)
	require.NoError(t, err)

	assert.Equal(t, ids(source), ids(out))
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, []string(out[0].Options))
	assert.Equal(t, "beta", out[0].CorrectAnswer, "index answers are rewritten to option text")
	assert.Equal(t, "1", source[0].CorrectAnswer, "source questions are not modified")
}

func TestMaterialize_SameSeedSameOrder(t *testing.T) {
	rules := models.QuizRules{RandomizeQuestions: true, RandomizeAnswers: true}

	first, err := materialize(mixedQuestions(12), rules, 7)
	require.NoError(t, err)
	second, err := materialize(mixedQuestions(12), rules, 7)
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	for i := range first {
		assert.Equal(t, first[i].Options, second[i].Options)
	}
}

func TestMaterialize_ShufflePreservesMembership(t *testing.T) {
	source := mixedQuestions(12)
	rules := models.QuizRules{RandomizeQuestions: true, RandomizeAnswers: true}

	orders := make(map[string]bool)
	for seed := int64(1); seed <= 20; seed++ {
		out, err := materialize(source, rules, seed)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids(source), ids(out))
		orders[fmt.Sprint(ids(out))] = true

		for _, q := range out {
			assert.ElementsMatch(t, []string{"alpha", "beta", "gamma", "delta"}, []string(q.Options))
			assert.True(t, ScoreAnswer(q, answer("beta")), "correct option survives answer shuffling")
		}
	}
	assert.Greater(t, len(orders), 1, "different seeds produce different orders")
}

func TestMaterialize_RejectsDuplicateIDs(t *testing.T) {
	source := mixedQuestions(2)
	source[1].ID = source[0].ID

	_, err := materialize(source, models.QuizRules{}, 1)
	assert.Error(t, err)
}

func TestMaterialize_RejectsUnresolvableAnswer(t *testing.T) {
	source := mixedQuestions(1)
	source[0].CorrectAnswer = "omega"

	_, err := materialize(source, models.QuizRules{}, 1)
	assert.Error(t, err)
}

func TestPermutation(t *testing.T) {
	order := permutation(10, rand.New(rand.NewSource(1)))
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)

	assert.Empty(t, permutation(0, rand.New(rand.NewSource(1))))
	assert.Equal(t, []int{0}, permutation(1, rand.New(rand.NewSource(1))))
}
