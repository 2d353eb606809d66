package model

import "time"

// InterviewExport is the top-level JSON structure for result export.
type InterviewExport struct {
	ExportedAt       time.Time         `json:"exported_at"`
	QuestionsPerTier int               `json:"questions_per_tier"`
	SelectPerTier    int               `json:"select_per_tier"`
	Results          []InterviewResult `json:"results"`
}

// InterviewResult holds one session's data for export.
type InterviewResult struct {
	SessionID     string            `json:"session_id"`
	StudentID     string            `json:"student_id"`
	CompanyID     string            `json:"company_id"`
	TemplateTitle string            `json:"template_title"`
	JobRole       string            `json:"job_role"`
	Status        SessionStatus     `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Answers       []AnswerResult    `json:"answers"`
	Transcript    []TranscriptEntry `json:"transcript"`
	OverallScore  *float64          `json:"overall_score,omitempty"`
	FinalReport   string            `json:"final_report,omitempty"`
}

// AnswerResult holds one evaluated answer for export.
type AnswerResult struct {
	QuestionText string             `json:"question_text"`
	Difficulty   Difficulty         `json:"difficulty"`
	AnswerText   string             `json:"answer_text"`
	Score        float64            `json:"score"`
	Feedback     string             `json:"feedback"`
	Strengths    []string           `json:"strengths"`
	Weaknesses   []string           `json:"weaknesses"`
	FollowUps    []FollowUpQuestion `json:"follow_up_questions,omitempty"`
	AnsweredAt   time.Time          `json:"answered_at"`
}
