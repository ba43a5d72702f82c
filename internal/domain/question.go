package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuestionType tags which configuration variant a question carries.
type QuestionType string

const (
	QuestionProgramming QuestionType = "programming"
	QuestionTheory      QuestionType = "theory"
	QuestionMCQSingle   QuestionType = "mcq_single"
	QuestionMCQMultiple QuestionType = "mcq_multiple"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionProgramming, QuestionTheory, QuestionMCQSingle, QuestionMCQMultiple:
		return true
	}
	return false
}

// AutoScored reports whether results for this type are computed at submit time.
func (t QuestionType) AutoScored() bool {
	return t == QuestionMCQSingle || t == QuestionMCQMultiple
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionConfig is the type-specific configuration of a question. The set of
// implementations is closed: ProgrammingConfig, TheoryConfig, MCQSingleConfig
// and MCQMultipleConfig.
type QuestionConfig interface {
	Type() QuestionType
	Level() Difficulty
	validate() []FieldError
	sealed()
}

type ProgrammingConfig struct {
	Difficulty Difficulty `json:"difficulty" validate:"required,oneof=easy medium hard"`
	TimeLimit  int        `json:"time_limit" validate:"gt=0"`
	Language   string     `json:"language" validate:"required"`
}

type TheoryConfig struct {
	Difficulty Difficulty `json:"difficulty" validate:"required,oneof=easy medium hard"`
	WordLimit  int        `json:"word_limit" validate:"gt=0"`
}

type MCQSingleConfig struct {
	Options       []string   `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer int        `json:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
}

type MCQMultipleConfig struct {
	Options        []string   `json:"options" validate:"min=2,dive,required"`
	CorrectAnswers []int      `json:"correct_answers"`
	Difficulty     Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
}

func (ProgrammingConfig) Type() QuestionType { return QuestionProgramming }
func (TheoryConfig) Type() QuestionType      { return QuestionTheory }
func (MCQSingleConfig) Type() QuestionType   { return QuestionMCQSingle }
func (MCQMultipleConfig) Type() QuestionType { return QuestionMCQMultiple }

func (c ProgrammingConfig) Level() Difficulty { return c.Difficulty }
func (c TheoryConfig) Level() Difficulty      { return c.Difficulty }
func (c MCQSingleConfig) Level() Difficulty   { return c.Difficulty }
func (c MCQMultipleConfig) Level() Difficulty { return c.Difficulty }

func (ProgrammingConfig) sealed() {}
func (TheoryConfig) sealed()      {}
func (MCQSingleConfig) sealed()   {}
func (MCQMultipleConfig) sealed() {}

func (c ProgrammingConfig) validate() []FieldError { return tagErrors(c) }
func (c TheoryConfig) validate() []FieldError      { return tagErrors(c) }

func (c MCQSingleConfig) validate() []FieldError {
	errs := tagErrors(c)
	if len(c.Options) >= 2 && (c.CorrectAnswer < 0 || c.CorrectAnswer >= len(c.Options)) {
		errs = append(errs, FieldError{Field: "correct_answer", Error: "correct_answer must be a valid option index"})
	}
	return errs
}

func (c MCQMultipleConfig) validate() []FieldError {
	errs := tagErrors(c)
	if len(c.CorrectAnswers) == 0 {
		return append(errs, FieldError{Field: "correct_answers", Error: "correct_answers must not be empty"})
	}
	seen := make(map[int]struct{}, len(c.CorrectAnswers))
	for _, idx := range c.CorrectAnswers {
		if idx < 0 || idx >= len(c.Options) {
			errs = append(errs, FieldError{Field: "correct_answers", Error: "index " + strconv.Itoa(idx) + " is not a valid option index"})
			continue
		}
		if _, dup := seen[idx]; dup {
			errs = append(errs, FieldError{Field: "correct_answers", Error: "index " + strconv.Itoa(idx) + " is repeated"})
		}
		seen[idx] = struct{}{}
	}
	return errs
}

// Question is a catalog entry. Config always matches Type.
type Question struct {
	ID          string         `json:"id"`
	ClientID    string         `json:"client_id"`
	Type        QuestionType   `json:"type"`
	Text        string         `json:"question_text"`
	Description string         `json:"question_description"`
	Tags        []string       `json:"tags"`
	Config      QuestionConfig `json:"additional_config"`
	Revision    int            `json:"revision"`
	PreviousID  string         `json:"previous_id,omitempty"`
	Deleted     bool           `json:"deleted"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Version     int64          `json:"version"`
}

// Difficulty returns the configured difficulty, empty when the variant has none set.
func (q Question) Difficulty() Difficulty {
	if q.Config == nil {
		return ""
	}
	return q.Config.Level()
}

// HasTag reports whether the question carries tag, compared case-insensitively.
func (q Question) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks the common fields and dispatches to the variant rules.
func (q Question) Validate() error {
	var errs []FieldError
	if !q.Type.Valid() {
		errs = append(errs, FieldError{Field: "type", Error: fmt.Sprintf("unknown question type %q", q.Type)})
	}
	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, FieldError{Field: "question_text", Error: "question_text is a required field"})
	}
	switch {
	case q.Config == nil:
		errs = append(errs, FieldError{Field: "additional_config", Error: "additional_config is a required field"})
	case q.Type.Valid() && q.Config.Type() != q.Type:
		errs = append(errs, FieldError{Field: "additional_config", Error: fmt.Sprintf("%s configuration does not match type %s", q.Config.Type(), q.Type)})
	default:
		for _, fe := range q.Config.validate() {
			fe.Field = "additional_config." + fe.Field
			errs = append(errs, fe)
		}
	}
	if len(errs) > 0 {
		return NewValidationError(errs...)
	}
	return nil
}

type questionJSON struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	Type        QuestionType    `json:"type"`
	Text        string          `json:"question_text"`
	Description string          `json:"question_description"`
	Tags        []string        `json:"tags"`
	Config      json.RawMessage `json:"additional_config"`
	Revision    int             `json:"revision"`
	PreviousID  string          `json:"previous_id,omitempty"`
	Deleted     bool            `json:"deleted"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int64           `json:"version"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if q.Config != nil {
		b, err := json.Marshal(q.Config)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(questionJSON{
		ID: q.ID, ClientID: q.ClientID, Type: q.Type, Text: q.Text, Description: q.Description,
		Tags: q.Tags, Config: raw, Revision: q.Revision, PreviousID: q.PreviousID, Deleted: q.Deleted,
		CreatedBy: q.CreatedBy, CreatedAt: q.CreatedAt, UpdatedAt: q.UpdatedAt, Version: q.Version,
	})
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var aux questionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	cfg, err := DecodeQuestionConfig(aux.Type, aux.Config)
	if err != nil {
		return err
	}
	*q = Question{
		ID: aux.ID, ClientID: aux.ClientID, Type: aux.Type, Text: aux.Text, Description: aux.Description,
		Tags: aux.Tags, Config: cfg, Revision: aux.Revision, PreviousID: aux.PreviousID, Deleted: aux.Deleted,
		CreatedBy: aux.CreatedBy, CreatedAt: aux.CreatedAt, UpdatedAt: aux.UpdatedAt, Version: aux.Version,
	}
	return nil
}

// DecodeQuestionConfig decodes raw into the variant selected by t.
func DecodeQuestionConfig(t QuestionType, raw json.RawMessage) (QuestionConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch t {
	case QuestionProgramming:
		var c ProgrammingConfig
		err := decodeStrict(raw, &c)
		return c, err
	case QuestionTheory:
		var c TheoryConfig
		err := decodeStrict(raw, &c)
		return c, err
	case QuestionMCQSingle:
		var c MCQSingleConfig
		err := decodeStrict(raw, &c)
		return c, err
	case QuestionMCQMultiple:
		var c MCQMultipleConfig
		err := decodeStrict(raw, &c)
		return c, err
	}
	return nil, NewError(ErrValidation, "unknown question type %q", t)
}

func decodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewError(ErrValidation, "additional_config: %v", err)
	}
	return nil
}

func tagErrors(v any) []FieldError {
	if err := ValidateStruct(v); err != nil {
		return Fields(err)
	}
	return nil
}
