package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/placipy/assessment-backend/internal/model"
)

// ClassifyQuestions normalizes a raw question list into stored question
// entries. Position is 1-based and determines both the questionId and the
// questionNumber used for reassembly ordering.
func ClassifyQuestions(raw []model.RawQuestion, defaultDifficulty model.Difficulty) []model.Question {
	questions := make([]model.Question, len(raw))
	for i, rq := range raw {
		questions[i] = ClassifyQuestion(rq, i+1, defaultDifficulty)
	}
	return questions
}

// ClassifyQuestion inspects one raw payload and returns its normalized
// form. MCQ detection takes precedence over coding detection; a question
// matching neither stays unclassified with no kind-specific fields.
// The normalization is deterministic and idempotent: feeding an already
// normalized question back in yields the same entry.
func ClassifyQuestion(rq model.RawQuestion, number int, defaultDifficulty model.Difficulty) model.Question {
	q := model.Question{
		QuestionID:     fmt.Sprintf("Q_%03d", number),
		QuestionNumber: number,
		Question:       questionText(rq),
		Points:         questionPoints(rq),
		Difficulty:     questionDifficulty(rq, defaultDifficulty),
		Subcategory:    rq.Subcategory,
	}
	if q.Subcategory == "" {
		q.Subcategory = "technical"
	}

	switch {
	case hasUsableOptions(rq.Options):
		q.Kind = model.KindMCQ
		q.Options = normalizeOptions(rq.Options)
		q.CorrectAnswer = normalizeCorrectAnswer(rq.CorrectAnswer)
		if rq.AnswerType == "numeric" {
			q.AnswerType = rq.AnswerType
			q.CorrectAnswers = normalizeToArray(rq.CorrectAnswers)
			q.Range = compactRaw(rq.Range)
			q.Unit = rq.Unit
			q.Explanation = rq.Explanation
		}

	case strings.TrimSpace(rq.StarterCode) != "":
		q.Kind = model.KindCoding
		q.StarterCode = rq.StarterCode
		q.TestCases = normalizeTestCases(rq.TestCases)
	}

	return q
}

func questionText(rq model.RawQuestion) string {
	if rq.Text != "" {
		return rq.Text
	}
	return rq.Question
}

func questionPoints(rq model.RawQuestion) int {
	if rq.Marks > 0 {
		return rq.Marks
	}
	if rq.Points > 0 {
		return rq.Points
	}
	return 1
}

func questionDifficulty(rq model.RawQuestion, fallback model.Difficulty) model.Difficulty {
	if rq.Difficulty != "" {
		return model.Difficulty(strings.ToUpper(rq.Difficulty))
	}
	if fallback != "" {
		return fallback
	}
	return model.DifficultyMedium
}

// hasUsableOptions reports whether at least one option carries non-empty
// text after trimming. Options may be bare strings or {text} objects;
// anything else counts as empty.
func hasUsableOptions(options []json.RawMessage) bool {
	for _, raw := range options {
		if text, _ := optionText(raw); strings.TrimSpace(text) != "" {
			return true
		}
	}
	return false
}

// optionText extracts the display text of a raw option. The second return
// carries the option id when the input was an {id,text} object.
func optionText(raw json.RawMessage) (string, string) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}
	var obj model.Option
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text, obj.ID
	}
	return "", ""
}

// normalizeOptions converts raw options into {id,text} entries. Bare
// strings receive sequential letter identifiers starting at "A"; object
// options keep their own id (or receive a letter if it is missing).
func normalizeOptions(options []json.RawMessage) []model.Option {
	normalized := make([]model.Option, len(options))
	for i, raw := range options {
		text, id := optionText(raw)
		if id == "" {
			id = string(rune('A' + i))
		}
		normalized[i] = model.Option{ID: id, Text: text}
	}
	return normalized
}

// normalizeCorrectAnswer converts a scalar, string, number or list input
// into a list of strings. Absence normalizes to an empty (nil) list.
func normalizeCorrectAnswer(raw json.RawMessage) []string {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}

	switch val := v.(type) {
	case []interface{}:
		answers := make([]string, 0, len(val))
		for _, e := range val {
			answers = append(answers, answerString(e))
		}
		return answers
	default:
		return []string{answerString(val)}
	}
}

func answerString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// normalizeToArray wraps a non-array JSON value in a single-element array,
// leaving arrays untouched. Absent input stays absent.
func normalizeToArray(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return trimmed
	}
	wrapped := make([]byte, 0, len(trimmed)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, trimmed...)
	wrapped = append(wrapped, ']')
	return wrapped
}

func compactRaw(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

func normalizeTestCases(raw []model.RawTestCase) []model.TestCase {
	if len(raw) == 0 {
		return nil
	}
	cases := make([]model.TestCase, len(raw))
	for i, tc := range raw {
		input := tc.Input
		if input == "" && tc.Inputs != nil {
			input = tc.Inputs.Input
		}
		cases[i] = model.TestCase{
			Inputs:         model.TestCaseInputs{Input: input},
			ExpectedOutput: tc.ExpectedOutput,
		}
	}
	return cases
}
