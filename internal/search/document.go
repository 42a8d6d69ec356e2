package search

import (
	"encoding/json"
	"strings"
)

// QuestionType enumerates the structural kinds of question.
type QuestionType string

const (
	TypeChoice      QuestionType = "choice"
	TypeFillBlank   QuestionType = "fill_blank"
	TypeCalculation QuestionType = "calculation"
	TypeApplication QuestionType = "application"
	TypeOther       QuestionType = "other"
)

// ParseQuestionType maps free-form type labels from upstream extraction onto
// the enumeration. Unknown labels become TypeOther.
func ParseQuestionType(s string) QuestionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "choice", "multiple_choice", "single_choice", "选择题", "选择":
		return TypeChoice
	case "fill_blank", "fill-blank", "fillblank", "blank", "填空题", "填空":
		return TypeFillBlank
	case "calculation", "calc", "计算题", "计算":
		return TypeCalculation
	case "application", "word_problem", "应用题", "应用":
		return TypeApplication
	default:
		return TypeOther
	}
}

// UnmarshalJSON accepts any label and normalizes it.
func (t *QuestionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseQuestionType(s)
	return nil
}

// Subject is a lower-cased subject label such as "math" or "physics".
type Subject string

// ParseSubject normalizes a subject label.
func ParseSubject(s string) Subject {
	return Subject(strings.ToLower(strings.TrimSpace(s)))
}

// Difficulty bounds.
const (
	MinDifficulty     = 1
	MaxDifficulty     = 5
	defaultDifficulty = 3
)

// Question is a single exam or practice question as supplied by the grading
// pipeline after extraction.
type Question struct {
	ID              string       `json:"id" msgpack:"id"`
	Stem            string       `json:"stem" msgpack:"stem"`
	Answer          string       `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Type            QuestionType `json:"type" msgpack:"type"`
	Subject         Subject      `json:"subject" msgpack:"subject"`
	Difficulty      int          `json:"difficulty" msgpack:"difficulty"`
	KnowledgePoints []string     `json:"knowledge_points,omitempty" msgpack:"knowledge_points,omitempty"`
}

// normalized returns a copy with enum fields canonicalized and difficulty
// clamped to the valid range (0 means unknown and maps to the middle level).
func (q Question) normalized() Question {
	q.Type = ParseQuestionType(string(q.Type))
	q.Subject = ParseSubject(string(q.Subject))
	switch {
	case q.Difficulty == 0:
		q.Difficulty = defaultDifficulty
	case q.Difficulty < MinDifficulty:
		q.Difficulty = MinDifficulty
	case q.Difficulty > MaxDifficulty:
		q.Difficulty = MaxDifficulty
	}
	return q.Clone()
}

// Clone returns a copy that shares no slices with q.
func (q Question) Clone() Question {
	if len(q.KnowledgePoints) > 0 {
		q.KnowledgePoints = append([]string(nil), q.KnowledgePoints...)
	}
	return q
}

// IndexEntry is the immutable indexed form of a Question.
type IndexEntry struct {
	Question Question
	Vector   []float64
}
