package store

import (
	"fmt"
	"time"

	"github.com/hireloop/interviewd/internal/model"
)

// ExportAllSessions builds export-ready interview results from all sessions.
func (s *Store) ExportAllSessions() (*model.InterviewExport, error) {
	cfg, err := s.GetEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	export := &model.InterviewExport{
		ExportedAt:       time.Now(),
		QuestionsPerTier: cfg.QuestionsPerTier,
		SelectPerTier:    cfg.SelectPerTier,
	}

	for _, sess := range sessions {
		view, err := s.GetSessionView(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", sess.ID, err)
		}

		var answers []model.AnswerResult
		for _, a := range view.Answers {
			q, err := s.GetQuestion(a.QuestionID)
			if err != nil {
				return nil, fmt.Errorf("get question %s: %w", a.QuestionID, err)
			}
			answers = append(answers, model.AnswerResult{
				QuestionText: q.Text,
				Difficulty:   q.Difficulty,
				AnswerText:   a.AnswerText,
				Score:        a.Score,
				Feedback:     a.Feedback,
				Strengths:    a.Strengths,
				Weaknesses:   a.Weaknesses,
				FollowUps:    a.FollowUps,
				AnsweredAt:   a.CreatedAt,
			})
		}

		export.Results = append(export.Results, model.InterviewResult{
			SessionID:     sess.ID,
			StudentID:     sess.StudentID,
			CompanyID:     sess.CompanyID,
			TemplateTitle: view.Template.Title,
			JobRole:       view.Template.JobRole,
			Status:        sess.Status,
			StartedAt:     sess.StartedAt,
			CompletedAt:   sess.CompletedAt,
			Answers:       answers,
			Transcript:    sess.Transcript,
			OverallScore:  sess.OverallScore,
			FinalReport:   sess.FinalReport,
		})
	}

	return export, nil
}
