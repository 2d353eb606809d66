// Package llm talks to an OpenAI-compatible chat API for question
// generation, answer evaluation, and final report assembly.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hireloop/interviewd/internal/llm/prompts"
	"github.com/hireloop/interviewd/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Evaluation holds the LLM's assessment of a single answer.
type Evaluation struct {
	Score            float64  `json:"score"`
	Feedback         string   `json:"feedback"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	FollowUpQuestion string   `json:"followUpQuestion,omitempty"`
}

// Report holds the LLM's final assessment of a whole session.
type Report struct {
	OverallScore     float64  `json:"overallScore"`
	Summary          string   `json:"summary"`
	DetailedFeedback string   `json:"detailedFeedback"`
	Recommendations  []string `json:"recommendations"`
}

// QA is one prior question/answer pair.
type QA struct {
	Question string
	Answer   string
}

// Context is the interview context bundle passed to evaluation calls.
type Context struct {
	JobRole        string
	Skills         []string
	JobDescription string
	CurrentRound   string
	PreviousQA     []QA
}

// AnswerRecord is one scored answer fed into report generation.
type AnswerRecord struct {
	Question   string
	Answer     string
	Score      float64
	Feedback   string
	Strengths  []string
	Weaknesses []string
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// GenerateQuestions asks the LLM for count interview questions for one
// (round, difficulty) pair and parses the JSON array out of the response.
func (c *Client) GenerateQuestions(ctx context.Context, jobRole string, skills []string, roundName string, difficulty model.Difficulty, count int, jobDescription string) ([]string, error) {
	prompt, err := prompts.BuildQuestions(prompts.QuestionsData{
		JobRole:        jobRole,
		Skills:         strings.Join(skills, ", "),
		RoundName:      roundName,
		Difficulty:     string(difficulty),
		Count:          count,
		JobDescription: jobDescription,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return nil, fmt.Errorf("question generation: %w", err)
	}

	payload, err := extractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("question generation: %w (raw: %s)", err, raw)
	}
	var questions []string
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		return nil, fmt.Errorf("parse question list: %w (raw: %s)", err, raw)
	}
	return questions, nil
}

// EvaluateAnswer scores one answer against the interview context and
// returns structured feedback, optionally including a follow-up question.
func (c *Client) EvaluateAnswer(ctx context.Context, question, answer string, ictx Context) (*Evaluation, error) {
	qa := make([]prompts.QA, len(ictx.PreviousQA))
	for i, p := range ictx.PreviousQA {
		qa[i] = prompts.QA{Question: p.Question, Answer: p.Answer}
	}
	prompt, err := prompts.BuildEvaluation(prompts.EvalData{
		JobRole:      ictx.JobRole,
		Skills:       strings.Join(ictx.Skills, ", "),
		CurrentRound: ictx.CurrentRound,
		Question:     question,
		Answer:       answer,
		PreviousQA:   qa,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, prompt, 0.3)
	if err != nil {
		return nil, fmt.Errorf("answer evaluation: %w", err)
	}
	slog.Debug("LLM evaluation response", "raw", raw)

	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("answer evaluation: %w (raw: %s)", err, raw)
	}
	var result Evaluation
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("parse evaluation: %w (raw: %s)", err, raw)
	}
	return &result, nil
}

// GenerateReport aggregates all scored answers into one final report.
func (c *Client) GenerateReport(ctx context.Context, ictx Context, answers []AnswerRecord) (*Report, error) {
	summaries := make([]prompts.AnswerSummary, len(answers))
	for i, a := range answers {
		summaries[i] = prompts.AnswerSummary{
			Index:    i + 1,
			Question: a.Question,
			Answer:   a.Answer,
			Score:    a.Score,
			Feedback: a.Feedback,
		}
	}
	prompt, err := prompts.BuildReport(prompts.ReportData{
		JobRole: ictx.JobRole,
		Skills:  strings.Join(ictx.Skills, ", "),
		Answers: summaries,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, prompt, 0.1)
	if err != nil {
		return nil, fmt.Errorf("report generation: %w", err)
	}

	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("report generation: %w (raw: %s)", err, raw)
	}
	var report Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("parse report: %w (raw: %s)", err, raw)
	}
	return &report, nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSONArray pulls the first JSON array out of free-form model
// output, tolerating markdown fences and surrounding prose.
func extractJSONArray(raw string) (string, error) {
	return extractDelimited(raw, '[', ']')
}

// extractJSONObject pulls the first JSON object out of free-form model
// output.
func extractJSONObject(raw string) (string, error) {
	return extractDelimited(raw, '{', '}')
}

func extractDelimited(raw string, opening, closing byte) (string, error) {
	start := strings.IndexByte(raw, opening)
	end := strings.LastIndexByte(raw, closing)
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON payload in model output")
	}
	return raw[start : end+1], nil
}
