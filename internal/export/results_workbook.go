package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"skillyhead-service/internal/app"
)

var resultsHeader = []string{"Email", "User ID", "Submission ID", "Submitted at", "Score", "Graded", "Pending questions"}

// ResultsWorkbook renders assessment reports, one sheet per assessment.
type ResultsWorkbook struct {
	File *excelize.File
}

func NewResultsWorkbook(reports ...app.Report) (*ResultsWorkbook, error) {
	f := excelize.NewFile()
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	scoreStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 2})

	used := map[string]int{}
	for i, rep := range reports {
		name := sheetName(rep.Assessment.Title, rep.Assessment.ID, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}

		for col, h := range resultsHeader {
			cell := fmt.Sprintf("%s1", colName(col+1))
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		end := colName(len(resultsHeader)) + "1"
		_ = f.SetCellStyle(name, "A1", end, bold)
		_ = f.AutoFilter(name, "A1:"+end, nil)

		for r, row := range rep.Rows {
			line := r + 2
			set := func(col int, v any) error {
				cell := fmt.Sprintf("%s%d", colName(col), line)
				if err := f.SetCellValue(name, cell, v); err != nil {
					return fmt.Errorf("set cell %s: %w", cell, err)
				}
				return nil
			}
			values := []any{
				row.Email, row.UserID, row.SubmissionID,
				row.SubmittedAt.UTC().Format(time.RFC3339), row.Score, yesNo(row.Graded), row.Pending,
			}
			for c, v := range values {
				if err := set(c+1, v); err != nil {
					return nil, err
				}
			}
			_ = f.SetCellStyle(name, fmt.Sprintf("E%d", line), fmt.Sprintf("E%d", line), scoreStyle)
		}
		for c, h := range resultsHeader {
			w := float64(len(h)) * 1.2
			if w < 14 {
				w = 14
			}
			_ = f.SetColWidth(name, colName(c+1), colName(c+1), w)
		}
		_ = f.SetColWidth(name, "A", "A", 32)
	}
	if len(reports) == 0 {
		_ = f.SetSheetName("Sheet1", "Results")
		for col, h := range resultsHeader {
			_ = f.SetCellStr("Results", fmt.Sprintf("%s1", colName(col+1)), h)
		}
	}
	return &ResultsWorkbook{File: f}, nil
}

// WriteTo streams the workbook as xlsx.
func (w *ResultsWorkbook) WriteTo(out io.Writer) (int64, error) {
	return w.File.WriteTo(out)
}

func (w *ResultsWorkbook) SaveAs(path string) error {
	return w.File.SaveAs(path)
}

// helpers
func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var invalidSheetRe = regexp.MustCompile(`[\\/:*?\[\]]+`)

// sheetName derives a unique sheet title within excel's 31 character limit.
func sheetName(title, fallback string, used map[string]int) string {
	s := strings.TrimSpace(invalidSheetRe.ReplaceAllString(title, " "))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		s = fallback
	}
	if r := []rune(s); len(r) > 28 {
		s = string(r[:28])
	}
	used[s]++
	if n := used[s]; n > 1 {
		s = fmt.Sprintf("%s (%d)", s, n)
	}
	return s
}
