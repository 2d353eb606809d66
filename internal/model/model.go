package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a candidate taking interviews.
	UserRoleStudent UserRole = "student"
	// UserRoleCompany is a company account that owns templates.
	UserRoleCompany UserRole = "company"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SessionStatus represents the lifecycle status of an interview session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "PENDING"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// Difficulty represents a question difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Tiers lists the difficulty tiers in presentation order: questions within
// a round are always asked easy first, hard last.
var Tiers = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// TranscriptRole identifies who produced a transcript entry.
type TranscriptRole string

const (
	RoleInterviewer TranscriptRole = "interviewer"
	RoleCandidate   TranscriptRole = "student"
)

// InterviewTemplate is a reusable interview definition owned by a company.
// Templates are immutable once question generation has run; changes mean a
// new template.
type InterviewTemplate struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	Title          string    `json:"title"`
	JobRole        string    `json:"job_role"`
	Skills         []string  `json:"skills"`
	JobDescription string    `json:"job_description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Round is an ordered phase of an interview (e.g. Introduction, Technical).
type Round struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id"`
	Name        string `json:"name"`
	SortOrder   int    `json:"order"`
	Description string `json:"description,omitempty"`
}

// Question is a generated interview question. Never mutated after creation.
type Question struct {
	ID         string     `json:"id"`
	RoundID    string     `json:"round_id"`
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty"`
	Category   string     `json:"category,omitempty"`
}

// TierSelection holds the question ids chosen for one round, one ordered
// list per difficulty tier.
type TierSelection struct {
	Easy   []string `json:"easy"`
	Medium []string `json:"medium"`
	Hard   []string `json:"hard"`
}

// All returns the concatenated id sequence in fixed tier order:
// easy, then medium, then hard.
func (t TierSelection) All() []string {
	out := make([]string, 0, len(t.Easy)+len(t.Medium)+len(t.Hard))
	out = append(out, t.Easy...)
	out = append(out, t.Medium...)
	out = append(out, t.Hard...)
	return out
}

// QuestionSelection maps round id to the questions frozen into a session
// at start time.
type QuestionSelection map[string]TierSelection

// TranscriptEntry is one utterance in a session transcript.
type TranscriptEntry struct {
	Role      TranscriptRole `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
}

// InterviewSession is one student's run through a template's rounds.
//
// The cursor (CurrentRoundIndex, CurrentQuestionIndex) always denotes a
// valid position in the current round's concatenated selection, or a round
// index equal to the template's round count once every round is exhausted.
type InterviewSession struct {
	ID                   string            `json:"id"`
	TemplateID           string            `json:"template_id"`
	StudentID            string            `json:"student_id"`
	CompanyID            string            `json:"company_id"`
	Status               SessionStatus     `json:"status"`
	SelectedQuestions    QuestionSelection `json:"selected_questions"`
	CurrentRoundIndex    int               `json:"current_round_index"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	Transcript           []TranscriptEntry `json:"transcript"`
	OverallScore         *float64          `json:"overall_score,omitempty"`
	FinalReport          string            `json:"final_report,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

// FollowUpQuestion is a follow-up probe attached to an answer. The answer
// field is persisted but never filled in: follow-ups are shown to the
// student as context, not re-entered into the question sequence.
type FollowUpQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is the stored evaluation of one question actually asked in a
// session. Created exactly once per (session, question) pair and never
// mutated afterwards.
type Answer struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	QuestionID string             `json:"question_id"`
	AnswerText string             `json:"answer_text"`
	AudioURL   string             `json:"audio_url,omitempty"`
	Score      float64            `json:"score"`
	Feedback   string             `json:"feedback"`
	Strengths  []string           `json:"strengths"`
	Weaknesses []string           `json:"weaknesses"`
	FollowUps  []FollowUpQuestion `json:"follow_up_questions"`
	CreatedAt  time.Time          `json:"created_at"`
}

// RoundView combines a round with its generated questions.
type RoundView struct {
	Round     Round      `json:"round"`
	Questions []Question `json:"questions"`
}

// TemplateView combines a template with its rounds and questions,
// rounds in ascending order.
type TemplateView struct {
	Template InterviewTemplate `json:"template"`
	Rounds   []RoundView       `json:"rounds"`
}

// SessionView combines session data with template and answers for display
// and export.
type SessionView struct {
	Session  InterviewSession  `json:"session"`
	Template InterviewTemplate `json:"template"`
	Answers  []Answer          `json:"answers"`
}

// EngineConfig holds runtime interview parameters set via CLI flags.
type EngineConfig struct {
	QuestionsPerTier int // generated per (round, tier)
	SelectPerTier    int // sampled into a session per (round, tier)
}
