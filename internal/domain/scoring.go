package domain

import "math"

// AggregateMode selects whether ungraded questions block the aggregate.
type AggregateMode int

const (
	AggregateFinal AggregateMode = iota
	AggregatePartial
)

// Score computes the synchronous result for an auto-scored question. The
// second return is false for variants left to an external evaluator.
func Score(q Question, a Answer) (QuestionResult, bool) {
	switch cfg := q.Config.(type) {
	case MCQSingleConfig:
		if len(a.Selected) == 1 && a.Selected[0] == cfg.CorrectAnswer {
			return percentResult(100, 100), true
		}
		return percentResult(0, 0), true
	case MCQMultipleConfig:
		correct := make(map[int]struct{}, len(cfg.CorrectAnswers))
		for _, idx := range cfg.CorrectAnswers {
			correct[idx] = struct{}{}
		}
		selected := make(map[int]struct{}, len(a.Selected))
		hits := 0
		for _, idx := range a.Selected {
			if _, dup := selected[idx]; dup {
				continue
			}
			selected[idx] = struct{}{}
			if _, ok := correct[idx]; ok {
				hits++
			}
		}
		completeness := round2(float64(hits) / float64(len(correct)) * 100)
		quality := completeness
		if hits == len(correct) && len(selected) == len(correct) {
			quality = 100
		}
		return percentResult(completeness, quality), true
	}
	return QuestionResult{}, false
}

// Aggregate returns the mean quality percentage across graded results. In
// final mode any ungraded result fails with ErrIncomplete.
func Aggregate(s Submission, mode AggregateMode) (float64, error) {
	var sum float64
	graded := 0
	for id, r := range s.Results {
		if !r.Graded() {
			if mode == AggregateFinal {
				return 0, NewError(ErrIncomplete, "question %s has not been graded", id)
			}
			continue
		}
		sum += *r.QualityPercentage
		graded++
	}
	if graded == 0 {
		return 0, nil
	}
	return round2(sum / float64(graded)), nil
}

// ValidPercentage reports whether p lies in [0, 100].
func ValidPercentage(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

func percentResult(completeness, quality float64) QuestionResult {
	return QuestionResult{CompletenessPercentage: &completeness, QualityPercentage: &quality}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidateAnswer checks that a matches the shape of q's variant.
func ValidateAnswer(q Question, a Answer) []FieldError {
	field := "answers." + q.ID
	switch cfg := q.Config.(type) {
	case MCQSingleConfig:
		if len(a.Selected) != 1 {
			return []FieldError{{Field: field, Error: "exactly one option must be selected"}}
		}
		if a.Selected[0] < 0 || a.Selected[0] >= len(cfg.Options) {
			return []FieldError{{Field: field, Error: "selected option is out of range"}}
		}
	case MCQMultipleConfig:
		if len(a.Selected) == 0 {
			return []FieldError{{Field: field, Error: "at least one option must be selected"}}
		}
		seen := make(map[int]struct{}, len(a.Selected))
		for _, idx := range a.Selected {
			if idx < 0 || idx >= len(cfg.Options) {
				return []FieldError{{Field: field, Error: "selected option is out of range"}}
			}
			if _, dup := seen[idx]; dup {
				return []FieldError{{Field: field, Error: "an option is selected more than once"}}
			}
			seen[idx] = struct{}{}
		}
	case ProgrammingConfig, TheoryConfig:
		if a.Text == "" {
			return []FieldError{{Field: field, Error: "answer text is required"}}
		}
	}
	return nil
}
