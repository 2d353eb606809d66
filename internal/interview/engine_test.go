package interview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/hireloop/interviewd/internal/llm"
	"github.com/hireloop/interviewd/internal/model"
	"github.com/hireloop/interviewd/internal/store"
)

type fakeGenerator struct {
	failRound string
	failTier  model.Difficulty
	calls     int
}

func (g *fakeGenerator) GenerateQuestions(_ context.Context, _ string, _ []string, roundName string, difficulty model.Difficulty, count int, _ string) ([]string, error) {
	g.calls++
	if roundName == g.failRound && difficulty == g.failTier {
		return nil, errors.New("model unavailable")
	}
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s %s question %d", roundName, difficulty, i+1)
	}
	return out, nil
}

type fakeEvaluator struct {
	fail     bool
	followUp string
	calls    int
	lastCtx  llm.Context
}

func (e *fakeEvaluator) EvaluateAnswer(_ context.Context, question, answer string, ictx llm.Context) (*llm.Evaluation, error) {
	e.calls++
	e.lastCtx = ictx
	if e.fail {
		return nil, errors.New("model unavailable")
	}
	return &llm.Evaluation{
		Score:            7,
		Feedback:         "feedback for " + question,
		Strengths:        []string{"clarity"},
		Weaknesses:       []string{"depth"},
		FollowUpQuestion: e.followUp,
	}, nil
}

type fakeReporter struct {
	fail  bool
	calls int
}

func (r *fakeReporter) GenerateReport(_ context.Context, _ llm.Context, answers []llm.AnswerRecord) (*llm.Report, error) {
	r.calls++
	if r.fail {
		return nil, errors.New("model unavailable")
	}
	return &llm.Report{
		OverallScore:     8.4,
		Summary:          fmt.Sprintf("summary of %d answers", len(answers)),
		DetailedFeedback: "detailed",
		Recommendations:  []string{"hire"},
	}, nil
}

type testEnv struct {
	engine    *Engine
	store     *store.Store
	generator *fakeGenerator
	evaluator *fakeEvaluator
	reporter  *fakeReporter
}

func newTestEnv(t *testing.T, cfg model.EngineConfig) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	env := &testEnv{
		store:     s,
		generator: &fakeGenerator{},
		evaluator: &fakeEvaluator{},
		reporter:  &fakeReporter{},
	}
	env.engine = New(s, env.generator, env.evaluator, env.reporter, cfg)
	return env
}

func backendTemplateRequest() CreateTemplateRequest {
	return CreateTemplateRequest{
		CompanyID: "co-1",
		Title:     "Backend Engineer Screening",
		JobRole:   "Backend Engineer",
		Skills:    []string{"Go", "SQL"},
		Rounds: []RoundSpec{
			{Name: "Introduction", Order: 1},
			{Name: "Technical", Order: 2},
		},
	}
}

func createTemplate(t *testing.T, env *testEnv) *model.TemplateView {
	t.Helper()
	view, _, err := env.engine.CreateTemplate(context.Background(), backendTemplateRequest())
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	return view
}

func startSession(t *testing.T, env *testEnv, templateID string) *model.InterviewSession {
	t.Helper()
	sess, err := env.engine.StartSession(context.Background(), templateID, "student-1", "co-1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return sess
}

func TestCreateTemplateGeneratesAllTiers(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})

	view, outcomes, err := env.engine.CreateTemplate(context.Background(), backendTemplateRequest())
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	// 2 rounds x 3 tiers.
	if len(outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.Errorf("unexpected generation error for %s/%s: %v", o.RoundName, o.Difficulty, o.Err)
		}
		if o.Count != 6 {
			t.Errorf("expected 6 questions for %s/%s, got %d", o.RoundName, o.Difficulty, o.Count)
		}
	}

	if len(view.Rounds) != 2 {
		t.Fatalf("expected 2 rounds in view, got %d", len(view.Rounds))
	}
	for _, rv := range view.Rounds {
		if len(rv.Questions) != 18 {
			t.Errorf("expected 18 questions in round %s, got %d", rv.Round.Name, len(rv.Questions))
		}
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{})

	cases := []struct {
		name string
		req  CreateTemplateRequest
	}{
		{"missing title", CreateTemplateRequest{JobRole: "Dev", Rounds: []RoundSpec{{Name: "R1"}}}},
		{"missing job role", CreateTemplateRequest{Title: "T", Rounds: []RoundSpec{{Name: "R1"}}}},
		{"no rounds", CreateTemplateRequest{Title: "T", JobRole: "Dev"}},
		{"blank round name", CreateTemplateRequest{Title: "T", JobRole: "Dev", Rounds: []RoundSpec{{Name: "  "}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.engine.CreateTemplate(context.Background(), tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateTemplatePartialGenerationFailure(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	env.generator.failRound = "Technical"
	env.generator.failTier = model.DifficultyMedium

	view, outcomes, err := env.engine.CreateTemplate(context.Background(), backendTemplateRequest())
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if o.RoundName != "Technical" || o.Difficulty != model.DifficultyMedium {
				t.Errorf("unexpected failed tier: %s/%s", o.RoundName, o.Difficulty)
			}
			if !errors.Is(o.Err, ErrProvider) {
				t.Errorf("expected ErrProvider, got %v", o.Err)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly 1 failed tier, got %d", failed)
	}

	// The template itself still exists with every other tier populated.
	for _, rv := range view.Rounds {
		want := 18
		if rv.Round.Name == "Technical" {
			want = 12
		}
		if len(rv.Questions) != want {
			t.Errorf("expected %d questions in %s, got %d", want, rv.Round.Name, len(rv.Questions))
		}
	}
}

func tierIDs(questions []model.Question, tier model.Difficulty) map[string]bool {
	ids := make(map[string]bool)
	for _, q := range questions {
		if q.Difficulty == tier {
			ids[q.ID] = true
		}
	}
	return ids
}

func TestStartSessionFreezesSelection(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)

	sess := startSession(t, env, view.Template.ID)
	if sess.Status != model.StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %q", sess.Status)
	}

	for _, rv := range view.Rounds {
		sel, ok := sess.SelectedQuestions[rv.Round.ID]
		if !ok {
			t.Fatalf("no selection for round %s", rv.Round.Name)
		}
		tiers := map[model.Difficulty][]string{
			model.DifficultyEasy:   sel.Easy,
			model.DifficultyMedium: sel.Medium,
			model.DifficultyHard:   sel.Hard,
		}
		seen := make(map[string]bool)
		for tier, ids := range tiers {
			if len(ids) != 2 {
				t.Errorf("round %s tier %s: expected 2 selected, got %d", rv.Round.Name, tier, len(ids))
			}
			pool := tierIDs(rv.Questions, tier)
			for _, id := range ids {
				if !pool[id] {
					t.Errorf("round %s tier %s: selected id %s not in generated pool", rv.Round.Name, tier, id)
				}
				if seen[id] {
					t.Errorf("round %s: duplicate selected id %s", rv.Round.Name, id)
				}
				seen[id] = true
			}
		}
	}

	// The stored session carries the same frozen selection.
	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	for roundID, sel := range sess.SelectedQuestions {
		got := stored.SelectedQuestions[roundID]
		if len(got.All()) != len(sel.All()) {
			t.Errorf("round %s: stored selection differs", roundID)
		}
	}
}

func TestStartSessionSmallPool(t *testing.T) {
	// Only 1 question generated per tier but 2 requested: take what exists.
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 1, SelectPerTier: 2})
	view := createTemplate(t, env)

	sess := startSession(t, env, view.Template.ID)
	for _, rv := range view.Rounds {
		sel := sess.SelectedQuestions[rv.Round.ID]
		if len(sel.All()) != 3 {
			t.Errorf("round %s: expected 3 selected (1 per tier), got %d", rv.Round.Name, len(sel.All()))
		}
	}
}

func TestStartSessionErrors(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{})

	_, err := env.engine.StartSession(context.Background(), "", "student-1", "co-1")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	_, err = env.engine.StartSession(context.Background(), "missing", "student-1", "co-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCurrentQuestionIsStable(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)

	first, err := env.engine.ResolveCurrentQuestion(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ResolveCurrentQuestion: %v", err)
	}
	if first.Done {
		t.Fatal("expected a question, got done sentinel")
	}
	if first.Question.Difficulty != model.DifficultyEasy {
		t.Errorf("expected first question EASY, got %q", first.Question.Difficulty)
	}
	if first.RoundNumber != 1 || first.TotalRounds != 2 {
		t.Errorf("expected round 1/2, got %d/%d", first.RoundNumber, first.TotalRounds)
	}
	if first.QuestionNumber != 1 || first.TotalInRound != 6 {
		t.Errorf("expected question 1/6, got %d/%d", first.QuestionNumber, first.TotalInRound)
	}

	for i := 0; i < 3; i++ {
		again, err := env.engine.ResolveCurrentQuestion(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("ResolveCurrentQuestion: %v", err)
		}
		if again.Question.ID != first.Question.ID {
			t.Fatalf("repeated resolution changed the question: %s vs %s", again.Question.ID, first.Question.ID)
		}
	}

	_, err = env.engine.ResolveCurrentQuestion(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFullSessionProgression(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	// 2 rounds x (2+2+2) questions.
	const total = 12
	var asked []string
	for i := 0; i < total; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if cur.Done {
			t.Fatalf("done after %d submissions, expected %d", i, total)
		}
		asked = append(asked, cur.Question.ID)

		result, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if result.Evaluation.Score != 7 {
			t.Errorf("submit %d: expected score 7, got %v", i, result.Evaluation.Score)
		}
	}

	// Every question asked exactly once.
	seen := make(map[string]bool)
	for _, id := range asked {
		if seen[id] {
			t.Errorf("question %s asked twice", id)
		}
		seen[id] = true
	}

	// Tier order within each round: easy, medium, hard.
	wantTiers := []model.Difficulty{
		"EASY", "EASY", "MEDIUM", "MEDIUM", "HARD", "HARD",
		"EASY", "EASY", "MEDIUM", "MEDIUM", "HARD", "HARD",
	}
	for i, id := range asked {
		q, err := env.store.GetQuestion(id)
		if err != nil {
			t.Fatalf("GetQuestion: %v", err)
		}
		if q.Difficulty != wantTiers[i] {
			t.Errorf("question %d: expected tier %s, got %s", i, wantTiers[i], q.Difficulty)
		}
	}

	// Exhausted: the done sentinel, with the cursor settled past the last round.
	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("resolve after exhaustion: %v", err)
	}
	if !cur.Done {
		t.Fatal("expected done sentinel after all submissions")
	}

	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.CurrentRoundIndex != 2 {
		t.Errorf("expected round index 2 after rollover, got %d", stored.CurrentRoundIndex)
	}
	if len(stored.Transcript) != 2*total {
		t.Fatalf("expected %d transcript entries, got %d", 2*total, len(stored.Transcript))
	}
	for i, entry := range stored.Transcript {
		want := model.RoleInterviewer
		if i%2 == 1 {
			want = model.RoleCandidate
		}
		if entry.Role != want {
			t.Errorf("transcript entry %d: expected role %s, got %s", i, want, entry.Role)
		}
	}

	// Submitting past the end conflicts.
	_, err = env.engine.SubmitAnswer(ctx, sess.ID, asked[0], "late answer")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict after exhaustion, got %v", err)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	_, err := env.engine.SubmitAnswer(ctx, sess.ID, "whatever", "   ")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank answer, got %v", err)
	}

	// A question id that is not the current one is rejected.
	_, err = env.engine.SubmitAnswer(ctx, sess.ID, "not-current", "real answer")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for stale question id, got %v", err)
	}

	_, err = env.engine.SubmitAnswer(ctx, "missing", "q", "answer")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitAnswerEvaluatorFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveCurrentQuestion: %v", err)
	}

	env.evaluator.fail = true
	_, err = env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.CurrentQuestionIndex != 0 {
		t.Errorf("expected cursor untouched, got question index %d", stored.CurrentQuestionIndex)
	}
	if len(stored.Transcript) != 0 {
		t.Errorf("expected empty transcript, got %d entries", len(stored.Transcript))
	}
	answers, err := env.store.ListAnswers(sess.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("expected no answers, got %d", len(answers))
	}

	// Recovery: the same question can be answered once the evaluator is back.
	env.evaluator.fail = false
	if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer"); err != nil {
		t.Fatalf("submit after recovery: %v", err)
	}
}

func TestSubmitAnswerFollowUpStoredPending(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	env.evaluator.followUp = "Can you elaborate on that?"
	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveCurrentQuestion: %v", err)
	}
	result, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "an answer")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if result.FollowUpQuestion != "Can you elaborate on that?" {
		t.Errorf("expected follow-up in result, got %q", result.FollowUpQuestion)
	}

	answers, err := env.store.ListAnswers(sess.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 || len(answers[0].FollowUps) != 1 {
		t.Fatalf("expected 1 answer with 1 follow-up, got %+v", answers)
	}
	fu := answers[0].FollowUps[0]
	if fu.Question != "Can you elaborate on that?" || fu.Answer != "" {
		t.Errorf("expected pending follow-up, got %+v", fu)
	}

	// The cursor still moved by exactly one: follow-ups are not enqueued.
	next, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveCurrentQuestion: %v", err)
	}
	if next.QuestionNumber != 2 {
		t.Errorf("expected question 2 after one submission, got %d", next.QuestionNumber)
	}
}

func TestEvaluatorReceivesHistory(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, fmt.Sprintf("answer %d", i+1)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if len(env.evaluator.lastCtx.PreviousQA) != i {
			t.Errorf("submission %d: expected %d prior QA pairs, got %d", i+1, i, len(env.evaluator.lastCtx.PreviousQA))
		}
	}
	if env.evaluator.lastCtx.JobRole != "Backend Engineer" {
		t.Errorf("expected job role in evaluator context, got %q", env.evaluator.lastCtx.JobRole)
	}
	if env.evaluator.lastCtx.CurrentRound != "Introduction" {
		t.Errorf("expected round name in evaluator context, got %q", env.evaluator.lastCtx.CurrentRound)
	}
}

func TestCompleteSession(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	// Answer a couple of questions, then complete early.
	for i := 0; i < 2; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	report, err := env.engine.Complete(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if report.OverallScore != 8.4 {
		t.Errorf("expected score 8.4, got %v", report.OverallScore)
	}

	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %q", stored.Status)
	}
	if stored.OverallScore == nil || *stored.OverallScore != 8.4 {
		t.Errorf("expected stored score 8.4, got %v", stored.OverallScore)
	}
	if stored.FinalReport == "" {
		t.Error("expected serialized final report")
	}

	// Completing again conflicts instead of regenerating the report.
	if _, err := env.engine.Complete(ctx, sess.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on second completion, got %v", err)
	}
	if env.reporter.calls != 1 {
		t.Errorf("expected exactly 1 reporter call, got %d", env.reporter.calls)
	}

	// Submissions after completion conflict too.
	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "late"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict after completion, got %v", err)
	}
}

func TestCompleteReporterFailureLeavesSessionOpen(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	env.reporter.fail = true
	if _, err := env.engine.Complete(ctx, sess.ID); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.Status != model.StatusInProgress {
		t.Errorf("expected session still IN_PROGRESS, got %q", stored.Status)
	}

	env.reporter.fail = false
	if _, err := env.engine.Complete(ctx, sess.ID); err != nil {
		t.Fatalf("complete after recovery: %v", err)
	}
}

func TestResolveAfterCompletion(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	// Answer everything. The final submission leaves the cursor on an
	// exhausted position with no resolution to roll it over before the
	// session completes.
	for i := 0; i < 12; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer"); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := env.engine.Complete(ctx, sess.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	for i := 0; i < 3; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve after completion: %v", err)
		}
		if !cur.Done {
			t.Fatal("expected done sentinel after completion")
		}
	}

	// The stored cursor of a completed session is frozen.
	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.CurrentRoundIndex != 1 || stored.CurrentQuestionIndex != 6 {
		t.Errorf("expected frozen cursor (1,6), got (%d,%d)", stored.CurrentRoundIndex, stored.CurrentQuestionIndex)
	}
}

func TestResolveAfterCancelRollsOverInMemory(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	// Exhaust round 1, then cancel before anything rolls the cursor over.
	for i := 0; i < 6; i++ {
		cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer"); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := env.engine.Cancel(ctx, sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("resolve after cancel: %v", err)
	}
	if cur.Done {
		t.Fatal("expected round 2's first question, got done sentinel")
	}
	if cur.RoundNumber != 2 || cur.QuestionNumber != 1 {
		t.Errorf("expected position round 2 question 1, got round %d question %d", cur.RoundNumber, cur.QuestionNumber)
	}

	stored, err := env.store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.CurrentRoundIndex != 0 || stored.CurrentQuestionIndex != 6 {
		t.Errorf("expected frozen cursor (0,6), got (%d,%d)", stored.CurrentRoundIndex, stored.CurrentQuestionIndex)
	}
}

// flakyQuestionStore fails every question lookup with a fixed error.
type flakyQuestionStore struct {
	*store.Store
	err error
}

func (s *flakyQuestionStore) GetQuestion(id string) (model.Question, error) {
	return model.Question{}, s.err
}

func TestCompleteQuestionLoadErrorKinds(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	cur, err := env.engine.ResolveCurrentQuestion(ctx, sess.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.engine.SubmitAnswer(ctx, sess.ID, cur.Question.ID, "answer"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// A missing row means the stored data is corrupt.
	broken := New(&flakyQuestionStore{Store: env.store, err: sql.ErrNoRows},
		env.generator, env.evaluator, env.reporter, model.EngineConfig{})
	if _, err := broken.Complete(ctx, sess.ID); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for missing question, got %v", err)
	}

	// A transient database failure is not corruption.
	flaky := New(&flakyQuestionStore{Store: env.store, err: errors.New("disk I/O error")},
		env.generator, env.evaluator, env.reporter, model.EngineConfig{})
	_, err = flaky.Complete(ctx, sess.ID)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if errors.Is(err, ErrIntegrity) {
		t.Errorf("transient failure misclassified as ErrIntegrity: %v", err)
	}
}

func TestCancelSession(t *testing.T) {
	env := newTestEnv(t, model.EngineConfig{QuestionsPerTier: 6, SelectPerTier: 2})
	view := createTemplate(t, env)
	sess := startSession(t, env, view.Template.ID)
	ctx := context.Background()

	if err := env.engine.Cancel(ctx, sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := env.engine.Cancel(ctx, sess.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on second cancel, got %v", err)
	}
	if err := env.engine.Cancel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
