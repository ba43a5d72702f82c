package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

// subjectUser picks whose view to render: the caller unless a user query is given.
func subjectUser(c *gin.Context) string {
	if u := c.Query("user"); u != "" {
		return u
	}
	return identity(c).UserID
}

func (s *Server) handleComposeAssessment(c *gin.Context) {
	var na app.NewAssessment
	if err := c.ShouldBindJSON(&na); err != nil {
		badRequest(c, "invalid assessment payload")
		return
	}
	a, err := s.core.Assessments.ComposeAssessment(c.Request.Context(), identity(c), na)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	a, err := s.core.Assessments.GetAssessment(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handlePublish(c *gin.Context) {
	a, err := s.core.Assessments.Publish(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleRetire(c *gin.Context) {
	a, err := s.core.Assessments.Retire(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleListAssessments(c *gin.Context) {
	filter := app.AssessmentFilter{
		ClientID: c.Query("client_id"),
		BatchID:  c.Query("batch_id"),
		Status:   domain.AssessmentStatus(c.Query("status")),
		Kind:     domain.AssessmentKind(c.Query("kind")),
		Tag:      c.Query("tag"),
	}
	offset, limit := pageParams(c)
	items, err := app.Collect(s.core.Assessments.ListAssessments(c.Request.Context(), identity(c), filter), offset, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[domain.Assessment]{Items: items, Offset: offset, Limit: limit})
}

func (s *Server) handleQuestionOrder(c *gin.Context) {
	order, err := s.core.Assessments.EffectiveQuestionOrder(c.Request.Context(), identity(c), c.Param("id"), subjectUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": order})
}

func (s *Server) handleOptionOrder(c *gin.Context) {
	order, err := s.core.Assessments.EffectiveOptionOrder(c.Request.Context(), identity(c), c.Param("id"), c.Param("qid"), subjectUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": order})
}

func (s *Server) handleSheet(c *gin.Context) {
	sheet, err := s.core.Assessments.Sheet(c.Request.Context(), identity(c), c.Param("id"), subjectUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": sheet})
}
