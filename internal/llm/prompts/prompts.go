// Package prompts builds the prompt text sent to the LLM for question
// generation, answer evaluation, and final report assembly.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
)

var (
	answerTagRegex = regexp.MustCompile(`(?i)</?\s*(candidate-answer|system-instructions)\b[^>]*>`)

	parseOnce    sync.Once
	questionTmpl *template.Template
	evalTmpl     *template.Template
	reportTmpl   *template.Template
)

// QuestionsData holds template data for question-generation prompts.
type QuestionsData struct {
	JobRole        string
	Skills         string
	RoundName      string
	Difficulty     string
	Count          int
	JobDescription string
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	JobRole      string
	Skills       string
	CurrentRound string
	Question     string
	Answer       string
	PreviousQA   []QA
}

// QA is one prior question/answer pair included in the evaluation context.
type QA struct {
	Question string
	Answer   string
}

// ReportData holds template data for final-report prompts.
type ReportData struct {
	JobRole string
	Skills  string
	Answers []AnswerSummary
}

// AnswerSummary is one scored answer summarized for the report prompt.
type AnswerSummary struct {
	Index    int
	Question string
	Answer   string
	Score    float64
	Feedback string
}

const questionTemplate = `You are an expert technical interviewer. Generate {{.Count}} {{.Difficulty}} interview questions for the "{{.RoundName}}" round.

Job Role: {{.JobRole}}
Required Skills: {{.Skills}}
{{if .JobDescription}}Job Description: {{.JobDescription}}
{{end}}
Difficulty Level: {{.Difficulty}}

Requirements:
- Questions should be appropriate for {{.Difficulty}} level
- Focus on {{.RoundName}} aspects of the interview
- Questions should assess the candidate's knowledge of: {{.Skills}}
- Make questions practical and relevant to the job role
- For technical rounds, include coding problems, system design, or concept explanations
- For HR rounds, include behavioral and situational questions

Return ONLY a JSON array of questions, no additional text:
["question 1", "question 2", ...]
`

const evalTemplate = `You are an expert interviewer evaluating a candidate's answer.

Job Role: {{.JobRole}}
Required Skills: {{.Skills}}
Current Round: {{.CurrentRound}}
{{if .PreviousQA}}
Earlier in this interview:
{{range .PreviousQA}}Q: {{.Question}}
A: {{.Answer}}
{{end}}{{end}}
Question: {{.Question}}
Candidate's Answer: {{.Answer}}

Evaluate the answer and provide:
1. Score (0-10): Rate the answer quality, correctness, and completeness
2. Detailed Feedback: Explain what was good and what could be improved
3. Strengths: List 2-3 specific strengths in the answer
4. Weaknesses: List 2-3 specific areas for improvement
5. Follow-up Question (optional): If the answer needs clarification or depth

Return ONLY valid JSON in this exact format:
{"score": 7.5, "feedback": "...", "strengths": ["..."], "weaknesses": ["..."], "followUpQuestion": "optional follow-up question"}
`

const reportTemplate = `You are an expert interviewer creating a final evaluation report.

Job Role: {{.JobRole}}
Required Skills: {{.Skills}}

Interview Answers and Evaluations:
{{range .Answers}}Q{{.Index}}: {{.Question}}
A: {{.Answer}}
Score: {{.Score}}/10
Feedback: {{.Feedback}}

{{end}}Create a comprehensive final report including:
1. Overall Score (0-10): Weighted average considering all answers
2. Summary: Brief overview of the candidate's performance (2-3 sentences)
3. Detailed Feedback: In-depth analysis of strengths and areas for improvement
4. Recommendations: 3-5 specific recommendations for the candidate

Return ONLY valid JSON:
{"overallScore": 7.5, "summary": "...", "detailedFeedback": "...", "recommendations": ["..."]}
`

func parse() {
	questionTmpl = template.Must(template.New("questions").Parse(questionTemplate))
	evalTmpl = template.Must(template.New("eval").Parse(evalTemplate))
	reportTmpl = template.Must(template.New("report").Parse(reportTemplate))
}

// BuildQuestions renders the question-generation prompt.
func BuildQuestions(data QuestionsData) (string, error) {
	parseOnce.Do(parse)
	return render(questionTmpl, data)
}

// BuildEvaluation renders the answer-evaluation prompt. The candidate's
// answer is sanitized before rendering.
func BuildEvaluation(data EvalData) (string, error) {
	parseOnce.Do(parse)
	data.Answer = Sanitize(data.Answer)
	for i := range data.PreviousQA {
		data.PreviousQA[i].Answer = Sanitize(data.PreviousQA[i].Answer)
	}
	return render(evalTmpl, data)
}

// BuildReport renders the final-report prompt.
func BuildReport(data ReportData) (string, error) {
	parseOnce.Do(parse)
	for i := range data.Answers {
		data.Answers[i].Answer = Sanitize(data.Answers[i].Answer)
	}
	return render(reportTmpl, data)
}

// Sanitize strips tag-like markers a candidate could use to masquerade as
// prompt structure.
func Sanitize(answer string) string {
	return strings.TrimSpace(answerTagRegex.ReplaceAllString(answer, ""))
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
