// Package interview owns the lifecycle of interview sessions: question
// selection at start, current-question resolution, answer submission with
// cursor advance, and completion. It is the sole caller of the question
// generator, answer evaluator, and report generator during a session's
// life, and the sole mutator of session progress fields.
package interview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/interviewd/internal/llm"
	"github.com/hireloop/interviewd/internal/model"
)

// Store is the persistence surface the engine depends on.
// *store.Store satisfies it; tests may substitute their own.
type Store interface {
	CreateTemplate(t model.InterviewTemplate, rounds []model.Round) error
	GetTemplate(id string) (model.InterviewTemplate, error)
	GetTemplateView(templateID string) (*model.TemplateView, error)
	GetRoundsForTemplate(templateID string) ([]model.Round, error)
	InsertQuestions(questions []model.Question) error
	GetQuestion(id string) (model.Question, error)
	CreateSession(sess model.InterviewSession) error
	GetSession(id string) (model.InterviewSession, error)
	AdvanceCursor(sessionID string, fromRound, fromQuestion, toRound, toQuestion int) (bool, error)
	RecordAnswer(a model.Answer, entries []model.TranscriptEntry, fromRound, fromQuestion int) (bool, error)
	ListAnswers(sessionID string) ([]model.Answer, error)
	CompleteSession(id string, overallScore float64, finalReport string, completedAt time.Time) (bool, error)
	CancelSession(id string) (bool, error)
}

// QuestionGenerator produces interview questions for one (round, tier).
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, jobRole string, skills []string, roundName string, difficulty model.Difficulty, count int, jobDescription string) ([]string, error)
}

// AnswerEvaluator scores a single answer.
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, question, answer string, ictx llm.Context) (*llm.Evaluation, error)
}

// ReportGenerator aggregates scored answers into a final report.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, ictx llm.Context, answers []llm.AnswerRecord) (*llm.Report, error)
}

// Engine is the session progression engine. All collaborators are injected
// at construction so tests can substitute fakes.
type Engine struct {
	store     Store
	generator QuestionGenerator
	evaluator AnswerEvaluator
	reporter  ReportGenerator
	cfg       model.EngineConfig
	locks     *sessionLocks
}

// New creates an Engine.
func New(s Store, g QuestionGenerator, e AnswerEvaluator, r ReportGenerator, cfg model.EngineConfig) *Engine {
	if cfg.QuestionsPerTier <= 0 {
		cfg.QuestionsPerTier = 6
	}
	if cfg.SelectPerTier <= 0 {
		cfg.SelectPerTier = 2
	}
	return &Engine{
		store:     s,
		generator: g,
		evaluator: e,
		reporter:  r,
		cfg:       cfg,
		locks:     newSessionLocks(),
	}
}

// RoundSpec describes one round in a template creation request.
type RoundSpec struct {
	Name        string `json:"name"`
	Order       int    `json:"order"`
	Description string `json:"description,omitempty"`
}

// CreateTemplateRequest carries the input for template creation.
type CreateTemplateRequest struct {
	CompanyID      string      `json:"company_id"`
	Title          string      `json:"title"`
	JobRole        string      `json:"job_role"`
	Skills         []string    `json:"skills"`
	JobDescription string      `json:"job_description,omitempty"`
	Rounds         []RoundSpec `json:"rounds"`
}

// GenerationOutcome reports the result of question generation for one
// (round, tier) pair. A failed tier leaves Err set; the remaining tiers
// are still generated.
type GenerationOutcome struct {
	RoundID    string           `json:"round_id"`
	RoundName  string           `json:"round_name"`
	Difficulty model.Difficulty `json:"difficulty"`
	Count      int              `json:"count"`
	Err        error            `json:"-"`
}

// CreateTemplate creates a template with its rounds and generates
// questions for every (round, tier) pair. Generation failures are isolated
// per pair and reported in the returned outcomes; partial success is
// expected and leaves the affected tiers empty.
func (e *Engine) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*model.TemplateView, []GenerationOutcome, error) {
	if err := validateTemplateRequest(req); err != nil {
		return nil, nil, err
	}

	t := model.InterviewTemplate{
		ID:             uuid.NewString(),
		CompanyID:      req.CompanyID,
		Title:          req.Title,
		JobRole:        req.JobRole,
		Skills:         req.Skills,
		JobDescription: req.JobDescription,
		CreatedAt:      time.Now(),
	}
	rounds := make([]model.Round, len(req.Rounds))
	for i, spec := range req.Rounds {
		rounds[i] = model.Round{
			ID:          uuid.NewString(),
			TemplateID:  t.ID,
			Name:        spec.Name,
			SortOrder:   spec.Order,
			Description: spec.Description,
		}
	}

	if err := e.store.CreateTemplate(t, rounds); err != nil {
		return nil, nil, fmt.Errorf("create template: %w", err)
	}

	var outcomes []GenerationOutcome
	for _, round := range rounds {
		for _, tier := range model.Tiers {
			outcome := e.generateTier(ctx, t, round, tier)
			if outcome.Err != nil {
				slog.Warn("question generation failed",
					"template_id", t.ID, "round", round.Name, "difficulty", tier, "error", outcome.Err)
			}
			outcomes = append(outcomes, outcome)
		}
	}

	view, err := e.store.GetTemplateView(t.ID)
	if err != nil {
		return nil, outcomes, fmt.Errorf("load created template: %w", err)
	}
	return view, outcomes, nil
}

func (e *Engine) generateTier(ctx context.Context, t model.InterviewTemplate, round model.Round, tier model.Difficulty) GenerationOutcome {
	outcome := GenerationOutcome{RoundID: round.ID, RoundName: round.Name, Difficulty: tier}

	texts, err := e.generator.GenerateQuestions(ctx, t.JobRole, t.Skills, round.Name, tier, e.cfg.QuestionsPerTier, t.JobDescription)
	if err != nil {
		outcome.Err = &ProviderError{Op: "generate questions", Err: err}
		return outcome
	}

	questions := make([]model.Question, 0, len(texts))
	for _, text := range texts {
		questions = append(questions, model.Question{
			ID:         uuid.NewString(),
			RoundID:    round.ID,
			Text:       text,
			Difficulty: tier,
			Category:   strings.ToLower(round.Name),
		})
	}
	if err := e.store.InsertQuestions(questions); err != nil {
		outcome.Err = fmt.Errorf("store questions: %w", err)
		return outcome
	}
	outcome.Count = len(questions)
	return outcome
}

func validateTemplateRequest(req CreateTemplateRequest) error {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case strings.TrimSpace(req.JobRole) == "":
		return fmt.Errorf("%w: job role is required", ErrValidation)
	case len(req.Rounds) == 0:
		return fmt.Errorf("%w: at least one round is required", ErrValidation)
	}
	for _, r := range req.Rounds {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: round name is required", ErrValidation)
		}
	}
	return nil
}

// StartSession samples the frozen question selection from a template's
// generated questions and creates a new IN_PROGRESS session.
func (e *Engine) StartSession(ctx context.Context, templateID, studentID, companyID string) (*model.InterviewSession, error) {
	if templateID == "" || studentID == "" || companyID == "" {
		return nil, fmt.Errorf("%w: template, student, and company ids are required", ErrValidation)
	}

	view, err := e.store.GetTemplateView(templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: template %s", ErrNotFound, templateID)
		}
		return nil, fmt.Errorf("load template: %w", err)
	}

	sess := model.InterviewSession{
		ID:                   uuid.NewString(),
		TemplateID:           templateID,
		StudentID:            studentID,
		CompanyID:            companyID,
		Status:               model.StatusInProgress,
		SelectedQuestions:    buildSelection(view.Rounds, e.cfg.SelectPerTier),
		CurrentRoundIndex:    0,
		CurrentQuestionIndex: 0,
		Transcript:           []model.TranscriptEntry{},
		StartedAt:            time.Now(),
	}
	if err := e.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("started interview session",
		"session_id", sess.ID, "template_id", templateID, "student_id", studentID)
	return &sess, nil
}

// CurrentQuestion describes the question a student must answer next, or
// the completed sentinel when every round is exhausted. The positional
// metadata is derived fresh on every call and never stored.
type CurrentQuestion struct {
	Done           bool           `json:"done"`
	Question       model.Question `json:"question,omitzero"`
	RoundName      string         `json:"round_name,omitempty"`
	QuestionNumber int            `json:"question_number,omitempty"`
	TotalInRound   int            `json:"total_in_round,omitempty"`
	RoundNumber    int            `json:"round_number,omitempty"`
	TotalRounds    int            `json:"total_rounds,omitempty"`
}

// ResolveCurrentQuestion returns the question the session's cursor points
// at, lazily rolling the cursor over exhausted rounds. Repeated calls
// without an intervening submission return the identical question.
func (e *Engine) ResolveCurrentQuestion(ctx context.Context, sessionID string) (*CurrentQuestion, error) {
	mu := e.locks.get(sessionID)
	mu.Lock()
	defer mu.Unlock()

	cur, _, _, err := e.resolveLocked(ctx, sessionID)
	return cur, err
}

// resolveLocked resolves the current question and reports the settled
// cursor position it corresponds to. Callers must hold the session lock.
//
// Round rollover is an explicit loop bounded by the round count: each
// iteration either returns or strictly increases the round index.
func (e *Engine) resolveLocked(ctx context.Context, sessionID string) (*CurrentQuestion, int, int, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, 0, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, 0, 0, fmt.Errorf("load session: %w", err)
	}

	rounds, err := e.store.GetRoundsForTemplate(sess.TemplateID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("load rounds: %w", err)
	}

	roundIdx, questionIdx := sess.CurrentRoundIndex, sess.CurrentQuestionIndex
	for hops := 0; hops <= len(rounds); hops++ {
		if roundIdx >= len(rounds) {
			return &CurrentQuestion{Done: true}, roundIdx, questionIdx, nil
		}

		round := rounds[roundIdx]
		selected, ok := sess.SelectedQuestions[round.ID]
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: session %s has no selection for round %s", ErrIntegrity, sessionID, round.ID)
		}
		ids := selected.All()

		if questionIdx >= len(ids) {
			// Round exhausted: advance and keep resolving. A session
			// that is no longer in progress rolls over in memory only;
			// its stored cursor is frozen and the CAS would never apply.
			if sess.Status == model.StatusInProgress {
				applied, err := e.store.AdvanceCursor(sess.ID, roundIdx, questionIdx, roundIdx+1, 0)
				if err != nil {
					return nil, 0, 0, fmt.Errorf("advance cursor: %w", err)
				}
				if !applied {
					return nil, 0, 0, fmt.Errorf("%w: session %s advanced concurrently", ErrConflict, sessionID)
				}
			}
			roundIdx, questionIdx = roundIdx+1, 0
			continue
		}

		q, err := e.store.GetQuestion(ids[questionIdx])
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, 0, 0, fmt.Errorf("%w: selected question %s missing", ErrIntegrity, ids[questionIdx])
			}
			return nil, 0, 0, fmt.Errorf("load question: %w", err)
		}

		return &CurrentQuestion{
			Question:       q,
			RoundName:      round.Name,
			QuestionNumber: questionIdx + 1,
			TotalInRound:   len(ids),
			RoundNumber:    roundIdx + 1,
			TotalRounds:    len(rounds),
		}, roundIdx, questionIdx, nil
	}

	return nil, 0, 0, fmt.Errorf("%w: session %s cursor did not settle", ErrIntegrity, sessionID)
}

// SubmissionResult is returned from a successful answer submission.
type SubmissionResult struct {
	Evaluation       llm.Evaluation `json:"evaluation"`
	FollowUpQuestion string         `json:"follow_up_question,omitempty"`
}

// SubmitAnswer evaluates the answer to the session's current question,
// persists the Answer row and transcript entries, and advances the cursor
// by one. The evaluator runs first: a failed evaluation writes nothing.
// The submitted question id must match the currently resolved question.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, questionID, answerText string) (*SubmissionResult, error) {
	if strings.TrimSpace(answerText) == "" {
		return nil, fmt.Errorf("%w: answer text is required", ErrValidation)
	}

	mu := e.locks.get(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.StatusInProgress {
		return nil, fmt.Errorf("%w: session %s is %s", ErrConflict, sessionID, sess.Status)
	}

	cur, roundIdx, questionIdx, err := e.resolveLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cur.Done {
		return nil, fmt.Errorf("%w: all rounds are complete", ErrConflict)
	}
	if cur.Question.ID != questionID {
		return nil, fmt.Errorf("%w: question %s is not the current question", ErrValidation, questionID)
	}

	template, err := e.store.GetTemplate(sess.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	history, err := e.priorQA(sessionID)
	if err != nil {
		return nil, err
	}

	evaluation, err := e.evaluator.EvaluateAnswer(ctx, cur.Question.Text, answerText, llm.Context{
		JobRole:        template.JobRole,
		Skills:         template.Skills,
		JobDescription: template.JobDescription,
		CurrentRound:   cur.RoundName,
		PreviousQA:     history,
	})
	if err != nil {
		return nil, &ProviderError{Op: "evaluate answer", Err: err}
	}

	followUps := []model.FollowUpQuestion{}
	if evaluation.FollowUpQuestion != "" {
		// The follow-up is surfaced to the student but its answer is
		// never collected; the pair is stored pending with an empty
		// answer.
		followUps = append(followUps, model.FollowUpQuestion{Question: evaluation.FollowUpQuestion})
	}

	now := time.Now()
	answer := model.Answer{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		QuestionID: questionID,
		AnswerText: answerText,
		Score:      evaluation.Score,
		Feedback:   evaluation.Feedback,
		Strengths:  evaluation.Strengths,
		Weaknesses: evaluation.Weaknesses,
		FollowUps:  followUps,
		CreatedAt:  now,
	}
	entries := []model.TranscriptEntry{
		{Role: model.RoleInterviewer, Text: cur.Question.Text, Timestamp: now},
		{Role: model.RoleCandidate, Text: answerText, Timestamp: now},
	}

	applied, err := e.store.RecordAnswer(answer, entries, roundIdx, questionIdx)
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: session %s advanced concurrently", ErrConflict, sessionID)
	}

	return &SubmissionResult{
		Evaluation:       *evaluation,
		FollowUpQuestion: evaluation.FollowUpQuestion,
	}, nil
}

// Complete generates the final report from every stored answer and
// transitions the session to COMPLETED. A session that is already
// completed (or cancelled) is rejected with ErrConflict rather than
// regenerating the report.
func (e *Engine) Complete(ctx context.Context, sessionID string) (*llm.Report, error) {
	mu := e.locks.get(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.StatusInProgress {
		return nil, fmt.Errorf("%w: session %s is %s", ErrConflict, sessionID, sess.Status)
	}

	template, err := e.store.GetTemplate(sess.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	answers, err := e.store.ListAnswers(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	records := make([]llm.AnswerRecord, 0, len(answers))
	for _, a := range answers {
		q, err := e.store.GetQuestion(a.QuestionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: answered question %s missing", ErrIntegrity, a.QuestionID)
			}
			return nil, fmt.Errorf("load question: %w", err)
		}
		records = append(records, llm.AnswerRecord{
			Question:   q.Text,
			Answer:     a.AnswerText,
			Score:      a.Score,
			Feedback:   a.Feedback,
			Strengths:  a.Strengths,
			Weaknesses: a.Weaknesses,
		})
	}

	report, err := e.reporter.GenerateReport(ctx, llm.Context{
		JobRole:        template.JobRole,
		Skills:         template.Skills,
		JobDescription: template.JobDescription,
	}, records)
	if err != nil {
		return nil, &ProviderError{Op: "generate report", Err: err}
	}

	serialized, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("serialize report: %w", err)
	}
	applied, err := e.store.CompleteSession(sessionID, report.OverallScore, string(serialized), time.Now())
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: session %s is no longer in progress", ErrConflict, sessionID)
	}

	slog.Info("completed interview session",
		"session_id", sessionID, "overall_score", report.OverallScore)
	return report, nil
}

// Cancel transitions an in-progress session to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	mu := e.locks.get(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := e.store.GetSession(sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return fmt.Errorf("load session: %w", err)
	}
	applied, err := e.store.CancelSession(sessionID)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: session %s is not in progress", ErrConflict, sessionID)
	}
	return nil
}

// priorQA builds the full (question, answer) history for a session in
// creation order. The history is passed to the evaluator in full on every
// submission.
func (e *Engine) priorQA(sessionID string) ([]llm.QA, error) {
	answers, err := e.store.ListAnswers(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	history := make([]llm.QA, 0, len(answers))
	for _, a := range answers {
		q, err := e.store.GetQuestion(a.QuestionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: answered question %s missing", ErrIntegrity, a.QuestionID)
			}
			return nil, fmt.Errorf("load question: %w", err)
		}
		history = append(history, llm.QA{Question: q.Text, Answer: a.AnswerText})
	}
	return history, nil
}
