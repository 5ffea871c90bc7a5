package model

import "encoding/json"

// QuestionKind discriminates the payload shape of a question entry.
// Classification is best-effort: a question matching neither detector stays
// unclassified and carries no kind-specific fields.
type QuestionKind string

const (
	KindMCQ          QuestionKind = "mcq"
	KindCoding       QuestionKind = "coding"
	KindUnclassified QuestionKind = ""
)

// Option is one multiple-choice option with a letter identifier.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TestCaseInputs wraps the input of a coding test case.
type TestCaseInputs struct {
	Input string `json:"input"`
}

// TestCase is one normalized coding test case.
type TestCase struct {
	Inputs         TestCaseInputs `json:"inputs"`
	ExpectedOutput string         `json:"expectedOutput"`
}

// Question is one logical question as stored inside a batch record.
// Kind-specific fields are omitempty so the persisted item shape carries
// only the fields of the detected kind.
type Question struct {
	QuestionID     string       `json:"questionId"`
	QuestionNumber int          `json:"questionNumber"`
	Question       string       `json:"question"`
	Points         int          `json:"points"`
	Difficulty     Difficulty   `json:"difficulty"`
	Subcategory    string       `json:"subcategory"`
	Kind           QuestionKind `json:"kind,omitempty"`

	// MCQ fields.
	Options        []Option        `json:"options,omitempty"`
	CorrectAnswer  []string        `json:"correctAnswer,omitempty"`
	AnswerType     string          `json:"answerType,omitempty"`
	CorrectAnswers json.RawMessage `json:"correctAnswers,omitempty"`
	Range          json.RawMessage `json:"range,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Explanation    string          `json:"explanation,omitempty"`

	// Coding fields.
	StarterCode string     `json:"starterCode,omitempty"`
	TestCases   []TestCase `json:"testCases,omitempty"`
}

// RawTestCase is a coding test case as supplied by callers. Both the flat
// "input" spelling and the already-normalized "inputs" wrapper are accepted.
type RawTestCase struct {
	Input          string          `json:"input"`
	Inputs         *TestCaseInputs `json:"inputs"`
	ExpectedOutput string          `json:"expectedOutput"`
}

// RawQuestion is a question payload as supplied by callers. The shapes are
// deliberately loose: options may be bare strings or {id,text} objects,
// correctAnswer may be a scalar, a string or a list, and both "text"/"marks"
// and "question"/"points" spellings are accepted. The classifier normalizes
// all of it.
type RawQuestion struct {
	Text           string            `json:"text"`
	Question       string            `json:"question"`
	Marks          int               `json:"marks"`
	Points         int               `json:"points"`
	Difficulty     string            `json:"difficulty"`
	Subcategory    string            `json:"subcategory"`
	Options        []json.RawMessage `json:"options"`
	CorrectAnswer  json.RawMessage   `json:"correctAnswer"`
	AnswerType     string            `json:"answerType"`
	CorrectAnswers json.RawMessage   `json:"correctAnswers"`
	Range          json.RawMessage   `json:"range"`
	Unit           string            `json:"unit"`
	Explanation    string            `json:"explanation"`
	StarterCode    string            `json:"starterCode"`
	TestCases      []RawTestCase     `json:"testCases"`
}

// BatchRecord is one persisted slice of a kind's questions. Batch indices
// per kind are contiguous from 1, each batch holds at most the packer
// capacity, and empty batches are never persisted.
type BatchRecord struct {
	AssessmentID string     `json:"assessmentId"`
	Scope        string     `json:"scope"`
	EntityType   string     `json:"entityType"`
	Questions    []Question `json:"questions"`
}
