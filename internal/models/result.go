package models

// QuizResult is derived from a submitted session and never stored on its own.
type QuizResult struct {
	AttemptID          string          `json:"attempt_id"`
	AttemptNumber      int             `json:"attempt_number"`
	Score              int             `json:"score"`
	TotalQuestions     int             `json:"total_questions"`
	CorrectAnswers     int             `json:"correct_answers"`
	TotalPoints        int             `json:"total_points"`
	EarnedPoints       int             `json:"earned_points"`
	TimeSpent          int             `json:"time_spent"` // Seconds
	Passed             bool            `json:"passed"`
	PassThreshold      int             `json:"pass_threshold"`
	TimeExpired        bool            `json:"time_expired"`
	Answers            []Answer        `json:"answers"`
	Feedback           *string         `json:"feedback,omitempty"`
	Breakdown          []QuestionScore `json:"breakdown,omitempty"`
	Certificate        *Certificate    `json:"certificate,omitempty"`
	CertificatePending bool            `json:"certificate_pending,omitempty"`
}

type QuestionScore struct {
	QuestionID    string   `json:"question_id"`
	Points        int      `json:"points"`
	EarnedPoints  int      `json:"earned_points"`
	Answered      bool     `json:"answered"`
	Correct       bool     `json:"correct"`
	CorrectAnswer []string `json:"correct_answer,omitempty"`
	Explanation   *string  `json:"explanation,omitempty"`
}

// LearnerContext is the identity and course scope handed in by the host
// application. It is trusted as given.
type LearnerContext struct {
	LearnerID               string  `json:"learner_id" validate:"required,max=64"`
	RecipientName           string  `json:"recipient_name" validate:"max=200"`
	CourseID                string  `json:"course_id" validate:"required"`
	CourseTitle             string  `json:"course_title" validate:"max=200"`
	EnrollmentID            string  `json:"enrollment_id" validate:"required_if=CertificatesEnabled true,max=64"`
	ModuleID                *string `json:"module_id,omitempty"`
	CertificatesEnabled     bool    `json:"certificates_enabled"`
	CertificateTemplate     string  `json:"certificate_template,omitempty"`
	CertificateValidityDays *int    `json:"certificate_validity_days,omitempty" validate:"omitempty,min=1"`
}
