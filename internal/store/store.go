package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hireloop/interviewd/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		title TEXT NOT NULL,
		job_role TEXT NOT NULL,
		skills TEXT NOT NULL DEFAULT '[]',
		job_description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		name TEXT NOT NULL,
		sort_order INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (template_id) REFERENCES templates(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		round_id TEXT NOT NULL,
		text TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (round_id) REFERENCES rounds(id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		selected_questions TEXT NOT NULL DEFAULT '{}',
		current_round_index INTEGER NOT NULL DEFAULT 0,
		current_question_index INTEGER NOT NULL DEFAULT 0,
		transcript TEXT NOT NULL DEFAULT '[]',
		overall_score REAL,
		final_report TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (template_id) REFERENCES templates(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		answer_text TEXT NOT NULL,
		audio_url TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		strengths TEXT NOT NULL DEFAULT '[]',
		weaknesses TEXT NOT NULL DEFAULT '[]',
		follow_ups TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS service_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTemplate stores a template and its rounds in one transaction.
// IDs must be assigned by the caller.
func (s *Store) CreateTemplate(t model.InterviewTemplate, rounds []model.Round) error {
	skills, err := json.Marshal(t.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO templates (id, company_id, title, job_role, skills, job_description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CompanyID, t.Title, t.JobRole, string(skills), t.JobDescription, t.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, r := range rounds {
		_, err := tx.Exec(
			`INSERT INTO rounds (id, template_id, name, sort_order, description) VALUES (?, ?, ?, ?, ?)`,
			r.ID, t.ID, r.Name, r.SortOrder, r.Description,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTemplate returns a template by ID.
func (s *Store) GetTemplate(id string) (model.InterviewTemplate, error) {
	var t model.InterviewTemplate
	var skills string
	err := s.db.QueryRow(
		`SELECT id, company_id, title, job_role, skills, job_description, created_at
		 FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.CompanyID, &t.Title, &t.JobRole, &skills, &t.JobDescription, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(skills), &t.Skills); err != nil {
		return t, fmt.Errorf("unmarshal skills for template %s: %w", id, err)
	}
	return t, nil
}

// ListTemplates returns all templates for a company, newest first.
// An empty companyID returns all templates.
func (s *Store) ListTemplates(companyID string) ([]model.InterviewTemplate, error) {
	query := `SELECT id, company_id, title, job_role, skills, job_description, created_at
		 FROM templates`
	var args []any
	if companyID != "" {
		query += ` WHERE company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []model.InterviewTemplate
	for rows.Next() {
		var t model.InterviewTemplate
		var skills string
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Title, &t.JobRole, &skills, &t.JobDescription, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skills), &t.Skills); err != nil {
			return nil, fmt.Errorf("unmarshal skills for template %s: %w", t.ID, err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetRoundsForTemplate returns a template's rounds in ascending order.
func (s *Store) GetRoundsForTemplate(templateID string) ([]model.Round, error) {
	rows, err := s.db.Query(
		`SELECT id, template_id, name, sort_order, description
		 FROM rounds WHERE template_id = ? ORDER BY sort_order`, templateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rounds []model.Round
	for rows.Next() {
		var r model.Round
		if err := rows.Scan(&r.ID, &r.TemplateID, &r.Name, &r.SortOrder, &r.Description); err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// InsertQuestions bulk-inserts generated questions in one transaction.
func (s *Store) InsertQuestions(questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range questions {
		_, err := tx.Exec(
			`INSERT INTO questions (id, round_id, text, difficulty, category) VALUES (?, ?, ?, ?, ?)`,
			q.ID, q.RoundID, q.Text, q.Difficulty, q.Category,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, round_id, text, difficulty, category FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.RoundID, &q.Text, &q.Difficulty, &q.Category)
	return q, err
}

// GetQuestionsForRound returns all questions in a round.
func (s *Store) GetQuestionsForRound(roundID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, text, difficulty, category FROM questions WHERE round_id = ? ORDER BY rowid`, roundID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.RoundID, &q.Text, &q.Difficulty, &q.Category); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetTemplateView loads a template with its rounds (ascending order) and
// their questions.
func (s *Store) GetTemplateView(templateID string) (*model.TemplateView, error) {
	t, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	rounds, err := s.GetRoundsForTemplate(templateID)
	if err != nil {
		return nil, err
	}

	view := &model.TemplateView{Template: t}
	for _, r := range rounds {
		qs, err := s.GetQuestionsForRound(r.ID)
		if err != nil {
			return nil, err
		}
		view.Rounds = append(view.Rounds, model.RoundView{Round: r, Questions: qs})
	}
	return view, nil
}

// CreateSession stores a new interview session. The selection map and
// transcript are serialized at this boundary only.
func (s *Store) CreateSession(sess model.InterviewSession) error {
	selected, err := json.Marshal(sess.SelectedQuestions)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	transcript, err := marshalTranscript(sess.Transcript)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, template_id, student_id, company_id, status, selected_questions,
		 current_round_index, current_question_index, transcript, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TemplateID, sess.StudentID, sess.CompanyID, sess.Status, string(selected),
		sess.CurrentRoundIndex, sess.CurrentQuestionIndex, transcript, sess.StartedAt,
	)
	return err
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.InterviewSession, error) {
	var sess model.InterviewSession
	var selected, transcript string
	err := s.db.QueryRow(
		`SELECT id, template_id, student_id, company_id, status, selected_questions,
		 current_round_index, current_question_index, transcript, overall_score, final_report,
		 started_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TemplateID, &sess.StudentID, &sess.CompanyID, &sess.Status, &selected,
		&sess.CurrentRoundIndex, &sess.CurrentQuestionIndex, &transcript, &sess.OverallScore,
		&sess.FinalReport, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal([]byte(selected), &sess.SelectedQuestions); err != nil {
		return sess, fmt.Errorf("unmarshal selection for session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(transcript), &sess.Transcript); err != nil {
		return sess, fmt.Errorf("unmarshal transcript for session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.InterviewSession, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sessions []model.InterviewSession
	for _, id := range ids {
		sess, err := s.GetSession(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// AdvanceCursor moves a session's cursor from the expected position to a
// new one. The update is conditioned on the expected prior cursor so a
// concurrently advanced session is left untouched; it reports whether the
// write was applied.
func (s *Store) AdvanceCursor(sessionID string, fromRound, fromQuestion, toRound, toQuestion int) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET current_round_index = ?, current_question_index = ?
		 WHERE id = ? AND current_round_index = ? AND current_question_index = ? AND status = ?`,
		toRound, toQuestion, sessionID, fromRound, fromQuestion, model.StatusInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordAnswer atomically inserts an answer row, appends the transcript
// entries, and advances the question index by one. The cursor update is a
// compare-and-swap on the expected prior position: if another writer got
// there first nothing is written and false is returned.
func (s *Store) RecordAnswer(a model.Answer, entries []model.TranscriptEntry, fromRound, fromQuestion int) (bool, error) {
	strengths, err := json.Marshal(a.Strengths)
	if err != nil {
		return false, fmt.Errorf("marshal strengths: %w", err)
	}
	weaknesses, err := json.Marshal(a.Weaknesses)
	if err != nil {
		return false, fmt.Errorf("marshal weaknesses: %w", err)
	}
	followUps, err := json.Marshal(a.FollowUps)
	if err != nil {
		return false, fmt.Errorf("marshal follow-ups: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT transcript FROM sessions WHERE id = ?`, a.SessionID).Scan(&raw)
	if err != nil {
		return false, err
	}
	var transcript []model.TranscriptEntry
	if err := json.Unmarshal([]byte(raw), &transcript); err != nil {
		return false, fmt.Errorf("unmarshal transcript for session %s: %w", a.SessionID, err)
	}
	transcript = append(transcript, entries...)
	updated, err := marshalTranscript(transcript)
	if err != nil {
		return false, err
	}

	res, err := tx.Exec(
		`UPDATE sessions SET transcript = ?, current_question_index = current_question_index + 1
		 WHERE id = ? AND current_round_index = ? AND current_question_index = ? AND status = ?`,
		updated, a.SessionID, fromRound, fromQuestion, model.StatusInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.Exec(
		`INSERT INTO answers (id, session_id, question_id, answer_text, audio_url, score, feedback,
		 strengths, weaknesses, follow_ups, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.QuestionID, a.AnswerText, a.AudioURL, a.Score, a.Feedback,
		string(strengths), string(weaknesses), string(followUps), a.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// ListAnswers returns all answers for a session in creation order.
func (s *Store) ListAnswers(sessionID string) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, answer_text, audio_url, score, feedback,
		 strengths, weaknesses, follow_ups, created_at
		 FROM answers WHERE session_id = ? ORDER BY rowid`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		var strengths, weaknesses, followUps string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.AnswerText, &a.AudioURL,
			&a.Score, &a.Feedback, &strengths, &weaknesses, &followUps, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(strengths), &a.Strengths); err != nil {
			return nil, fmt.Errorf("unmarshal strengths for answer %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(weaknesses), &a.Weaknesses); err != nil {
			return nil, fmt.Errorf("unmarshal weaknesses for answer %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(followUps), &a.FollowUps); err != nil {
			return nil, fmt.Errorf("unmarshal follow-ups for answer %s: %w", a.ID, err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CompleteSession transitions an in-progress session to COMPLETED, stamping
// the overall score, serialized report, and completion time. It reports
// whether the transition was applied; a session that is not IN_PROGRESS is
// left untouched.
func (s *Store) CompleteSession(id string, overallScore float64, finalReport string, completedAt time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, overall_score = ?, final_report = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		model.StatusCompleted, overallScore, finalReport, completedAt, id, model.StatusInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelSession transitions an in-progress session to CANCELLED.
func (s *Store) CancelSession(id string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ? WHERE id = ? AND status = ?`,
		model.StatusCancelled, id, model.StatusInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSessionView builds a full view of a session with template and answers.
func (s *Store) GetSessionView(sessionID string) (*model.SessionView, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	t, err := s.GetTemplate(sess.TemplateID)
	if err != nil {
		return nil, err
	}
	answers, err := s.ListAnswers(sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionView{Session: sess, Template: t, Answers: answers}, nil
}

func marshalTranscript(entries []model.TranscriptEntry) (string, error) {
	if entries == nil {
		entries = []model.TranscriptEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(b), nil
}
