package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestColName(t *testing.T) {
	cases := map[int]string{1: "A", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range cases {
		if got := colName(n); got != want {
			t.Fatalf("colName(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestSheetNameIsUniqueAndShort(t *testing.T) {
	used := map[string]int{}
	a := sheetName("Week 1: Algebra / Geometry and a very long trailing title", "a1", used)
	b := sheetName("Week 1: Algebra / Geometry and a very long trailing title", "a2", used)
	if len([]rune(a)) > 31 || len([]rune(b)) > 31 {
		t.Fatalf("sheet names too long: %q %q", a, b)
	}
	if a == b {
		t.Fatalf("expected distinct names, got %q twice", a)
	}
	if got := sheetName("  ", "fallback", used); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestResultsWorkbookRows(t *testing.T) {
	rep := app.Report{
		Assessment: domain.Assessment{ID: "a1", Title: "Midterm"},
		Rows: []app.ReportRow{
			{Email: "amy@example.com", UserID: "u1", SubmissionID: "s1", SubmittedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), Score: 66.67, Graded: true},
			{Email: "bob@example.com", UserID: "u2", SubmissionID: "s2", SubmittedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), Score: 50, Pending: 1},
		},
	}
	wb, err := NewResultsWorkbook(rep)
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rows, err := f.GetRows("Midterm")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "amy@example.com" || rows[2][5] != "no" || rows[2][6] != "1" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestBuildScorecardFollowsAssessmentOrder(t *testing.T) {
	a := domain.Assessment{Title: "Quiz", QuestionIDs: []string{"q2", "q1"}}
	sub := domain.Submission{
		Results: map[string]domain.QuestionResult{
			"q1": {CompletenessPercentage: ptr(100), QualityPercentage: ptr(100)},
			"q2": {},
		},
	}
	card := BuildScorecard(a, sub, "amy@example.com", map[string]domain.Question{
		"q1": {ID: "q1", Text: "First", Type: domain.QuestionMCQSingle},
	})
	if card.Final {
		t.Fatalf("scorecard with pending result must not be final")
	}
	if card.Score != 100 {
		t.Fatalf("expected partial score 100, got %v", card.Score)
	}
	if len(card.Lines) != 2 || card.Lines[0].Question != "q2" || card.Lines[1].Question != "First" {
		t.Fatalf("unexpected lines %+v", card.Lines)
	}
}

func TestScorecardWritesPDF(t *testing.T) {
	card := Scorecard{
		AssessmentTitle: "Quiz",
		Email:           "amy@example.com",
		Score:           75,
		Final:           true,
		Lines: []ScorecardLine{
			{Question: "Explain goroutines", Completeness: ptr(80), Quality: ptr(70), Comments: "good"},
			{Question: "Pick one"},
		},
	}
	var buf bytes.Buffer
	if err := card.WritePDF(&buf); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a pdf")
	}
}
