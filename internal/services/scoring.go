package services

import (
	"slices"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// ScoreSummary is the aggregate outcome of scoring an answer set.
type ScoreSummary struct {
	Score          int
	TotalQuestions int
	CorrectAnswers int
	TotalPoints    int
	EarnedPoints   int
	Passed         bool
	Breakdown      []models.QuestionScore
}

// ScoreAnswer reports whether value is a correct answer to question.
func ScoreAnswer(question *models.Question, value models.AnswerValue) bool {
	switch question.Type {
	case models.QuestionMultipleChoice:
		return scoreMultipleChoice(question, value)
	case models.QuestionTrueFalse:
		return scoreTrueFalse(question, value)
	case models.QuestionShortAnswer:
		return scoreShortAnswer(question, value)
	default:
		return false
	}
}

// Multiple choice is correct when the submitted option set equals the
// correct set, ignoring order and repeats.
func scoreMultipleChoice(question *models.Question, value models.AnswerValue) bool {
	correct, err := question.CanonicalCorrectAnswers()
	if err != nil || len(correct) == 0 {
		return false
	}

	submitted := []string(value)
	// A multi-select answer may arrive comma-joined like stored answers.
	if len(submitted) == 1 && !slices.Contains(question.Options, submitted[0]) {
		submitted = models.SplitTokens(submitted[0])
	}
	if len(submitted) == 0 {
		return false
	}

	return slices.Equal(uniqueSorted(submitted), uniqueSorted(correct))
}

func scoreTrueFalse(question *models.Question, value models.AnswerValue) bool {
	correct := question.CorrectTokens()
	if len(value) != 1 || len(correct) != 1 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(value[0]), correct[0])
}

// Short answers are correct when the submitted set equals the accepted
// set, ignoring order and repeats. Tokens compare exactly unless the
// question opts into normalized matching.
func scoreShortAnswer(question *models.Question, value models.AnswerValue) bool {
	normalized := question.MatchMode == models.MatchNormalized

	submitted := slices.Clone([]string(value))
	// A multi-part answer may arrive comma-joined like stored answers.
	if len(submitted) == 1 && strings.Contains(submitted[0], ",") {
		submitted = models.SplitTokens(submitted[0])
	}
	correct := question.CorrectTokens()
	if len(submitted) == 0 || len(correct) == 0 {
		return false
	}

	if normalized {
		for i := range submitted {
			submitted[i] = normalizeText(submitted[i])
		}
		for i := range correct {
			correct[i] = normalizeText(correct[i])
		}
	}
	return slices.Equal(uniqueSorted(submitted), uniqueSorted(correct))
}

// normalizeText trims, collapses inner whitespace and folds case.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func uniqueSorted(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

// ScoreQuiz scores answers against every question of the quiz. Unanswered
// questions earn nothing but still count toward the total.
func ScoreQuiz(questions []*models.Question, answers map[string]models.Answer, passThreshold int) ScoreSummary {
	summary := ScoreSummary{
		TotalQuestions: len(questions),
		Breakdown:      make([]models.QuestionScore, 0, len(questions)),
	}

	for _, q := range questions {
		entry := models.QuestionScore{
			QuestionID:  q.ID,
			Points:      q.Points,
			Explanation: q.Explanation,
		}
		if canonical, err := q.CanonicalCorrectAnswers(); err == nil {
			entry.CorrectAnswer = canonical
		}

		summary.TotalPoints += q.Points
		if answer, ok := answers[q.ID]; ok {
			entry.Answered = true
			entry.Correct = ScoreAnswer(q, answer.Value)
		}
		if entry.Correct {
			entry.EarnedPoints = q.Points
			summary.EarnedPoints += q.Points
			summary.CorrectAnswers++
		}
		summary.Breakdown = append(summary.Breakdown, entry)
	}

	summary.Score = CalculateScore(summary.EarnedPoints, summary.TotalPoints)
	summary.Passed = IsPassing(summary.Score, passThreshold)
	return summary
}

// CalculateScore converts points to a whole percentage, rounding half up.
func CalculateScore(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return (earned*200 + total) / (2 * total)
}

func IsPassing(score, passThreshold int) bool {
	return score >= passThreshold
}
