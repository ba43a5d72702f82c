package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type submitRequest struct {
	Answers map[string]domain.Answer `json:"answers"`
}

type bulkGradeRequest struct {
	Grades []app.GradeInput `json:"grades"`
}

type bulkGradeResponse struct {
	Posted int      `json:"posted"`
	Errors []string `json:"errors,omitempty"`
}

type scoreResponse struct {
	SubmissionID string  `json:"submission_id"`
	Mode         string  `json:"mode"`
	Score        float64 `json:"score"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid submission payload")
		return
	}
	sub, err := s.core.Submissions.Submit(c.Request.Context(), identity(c), c.Param("id"), req.Answers)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) handleGetSubmission(c *gin.Context) {
	sub, err := s.core.Submissions.GetSubmission(c.Request.Context(), identity(c), c.Param("id"), c.Param("userID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) handleGetSubmissionByID(c *gin.Context) {
	sub, err := s.core.Submissions.GetSubmissionByID(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) handleAggregateScore(c *gin.Context) {
	mode, name := domain.AggregateFinal, "final"
	switch c.DefaultQuery("mode", "final") {
	case "final":
	case "partial":
		mode, name = domain.AggregatePartial, "partial"
	default:
		badRequest(c, "mode must be final or partial")
		return
	}
	score, err := s.core.Submissions.AggregateScore(c.Request.Context(), identity(c), c.Param("id"), mode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreResponse{SubmissionID: c.Param("id"), Mode: name, Score: score})
}

func (s *Server) handleRecordGrade(c *gin.Context) {
	var in app.GradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid grade payload")
		return
	}
	sub, err := s.core.Submissions.RecordGrade(c.Request.Context(), identity(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// handleBulkGrade answers 207 when only some grades were posted.
func (s *Server) handleBulkGrade(c *gin.Context) {
	var req bulkGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Grades) == 0 {
		badRequest(c, "grades must be a non-empty list")
		return
	}
	posted, err := s.core.Submissions.BulkGrade(c.Request.Context(), identity(c), req.Grades)
	if err == nil {
		c.JSON(http.StatusOK, bulkGradeResponse{Posted: posted})
		return
	}
	if posted == 0 {
		s.writeError(c, err)
		return
	}
	resp := bulkGradeResponse{Posted: posted}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else {
		resp.Errors = []string{err.Error()}
	}
	c.JSON(http.StatusMultiStatus, resp)
}

func (s *Server) handleReport(c *gin.Context) {
	report, err := s.core.Submissions.AssessmentReport(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleReportWorkbook(c *gin.Context) {
	report, err := s.core.Submissions.AssessmentReport(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	wb, err := export.NewResultsWorkbook(report)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.xlsx"`, report.Assessment.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) handleScorecard(c *gin.Context) {
	ctx := c.Request.Context()
	actor := identity(c)
	sub, err := s.core.Submissions.GetSubmissionByID(ctx, actor, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	a, err := s.core.Assessments.GetAssessment(ctx, actor, sub.AssessmentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	questions := make(map[string]domain.Question, len(a.QuestionIDs))
	for _, qid := range a.QuestionIDs {
		q, err := s.core.Catalog.GetQuestion(ctx, actor, qid)
		if err != nil {
			s.writeError(c, err)
			return
		}
		questions[qid] = q
	}
	email := actor.Email
	if sub.UserID != actor.UserID {
		email = sub.UserID
		if u, err := s.core.Identity.GetUser(ctx, actor, sub.UserID); err == nil {
			email = u.Email
		}
	}
	var buf bytes.Buffer
	if err := export.BuildScorecard(a, sub, email, questions).WritePDF(&buf); err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="scorecard-%s.pdf"`, sub.ID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
