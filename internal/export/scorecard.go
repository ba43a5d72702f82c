package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"skillyhead-service/internal/domain"
)

// ScorecardLine is one question on a scorecard.
type ScorecardLine struct {
	Question     string
	Type         domain.QuestionType
	Completeness *float64
	Quality      *float64
	Comments     string
}

// Scorecard is the printable result of one submission.
type Scorecard struct {
	AssessmentTitle string
	Email           string
	SubmittedAt     time.Time
	Score           float64
	Final           bool
	Lines           []ScorecardLine
}

// BuildScorecard lays out sub in the assessment's catalog order. Questions
// missing from questions are shown by id.
func BuildScorecard(a domain.Assessment, sub domain.Submission, email string, questions map[string]domain.Question) Scorecard {
	score, err := domain.Aggregate(sub, domain.AggregateFinal)
	final := err == nil
	if !final {
		score, _ = domain.Aggregate(sub, domain.AggregatePartial)
	}
	card := Scorecard{
		AssessmentTitle: a.Title,
		Email:           email,
		SubmittedAt:     sub.SubmissionDate,
		Score:           score,
		Final:           final,
	}
	for _, id := range a.QuestionIDs {
		res, ok := sub.Results[id]
		if !ok {
			continue
		}
		line := ScorecardLine{
			Question:     id,
			Completeness: res.CompletenessPercentage,
			Quality:      res.QualityPercentage,
			Comments:     res.Comments,
		}
		if q, ok := questions[id]; ok {
			line.Question = q.Text
			line.Type = q.Type
		}
		card.Lines = append(card.Lines, line)
	}
	return card
}

// WritePDF renders the scorecard as an A4 PDF.
func (c Scorecard) WritePDF(w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(c.AssessmentTitle, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.MultiCell(0, 9, tr(c.AssessmentTitle), "", "L", false)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, tr(c.Email))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Submitted "+c.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(7)
	status := "final"
	if !c.Final {
		status = "grading in progress"
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Score: %.2f%% (%s)", c.Score, status))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(100, 7, "Question", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Completeness", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Quality", "1", 0, "C", true, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, l := range c.Lines {
		text := l.Question
		if r := []rune(text); len(r) > 60 {
			text = string(r[:57]) + "..."
		}
		pdf.CellFormat(100, 7, tr(text), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, percent(l.Completeness), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, percent(l.Quality), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		if l.Comments != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.MultiCell(160, 5, tr(l.Comments), "LRB", "L", false)
			pdf.SetFont("Arial", "", 10)
		}
	}
	return pdf.Output(w)
}

func percent(p *float64) string {
	if p == nil {
		return "pending"
	}
	return fmt.Sprintf("%.2f", *p)
}
