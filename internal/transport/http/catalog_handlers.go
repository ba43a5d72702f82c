package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

// questionRequest is the wire form of a question draft. The configuration is
// decoded once the type is known.
type questionRequest struct {
	ClientID    string              `json:"client_id"`
	Type        domain.QuestionType `json:"type"`
	Text        string              `json:"question_text"`
	Description string              `json:"question_description"`
	Tags        []string            `json:"tags"`
	Config      json.RawMessage     `json:"additional_config"`
}

type questionEditRequest struct {
	Text        *string         `json:"question_text"`
	Description *string         `json:"question_description"`
	Tags        []string        `json:"tags"`
	Config      json.RawMessage `json:"additional_config"`
}

func configError(err error) error {
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.NewValidationError(domain.FieldError{Field: "additional_config", Error: err.Error()})
}

func (s *Server) handleCreateQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid question payload")
		return
	}
	cfg, err := domain.DecodeQuestionConfig(req.Type, req.Config)
	if err != nil {
		s.writeError(c, configError(err))
		return
	}
	q, err := s.core.Catalog.CreateQuestion(c.Request.Context(), identity(c), app.QuestionDraft{
		ClientID:    req.ClientID,
		Type:        req.Type,
		Text:        req.Text,
		Description: req.Description,
		Tags:        req.Tags,
		Config:      cfg,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// questionEdit resolves the edit against the stored question so a partial
// configuration can be decoded into the right variant.
func (s *Server) questionEdit(c *gin.Context) (app.QuestionEdit, bool) {
	var req questionEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid question payload")
		return app.QuestionEdit{}, false
	}
	edit := app.QuestionEdit{Text: req.Text, Description: req.Description, Tags: req.Tags}
	if len(req.Config) == 0 {
		return edit, true
	}
	current, err := s.core.Catalog.GetQuestion(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return app.QuestionEdit{}, false
	}
	cfg, err := domain.DecodeQuestionConfig(current.Type, req.Config)
	if err != nil {
		s.writeError(c, configError(err))
		return app.QuestionEdit{}, false
	}
	edit.Config = cfg
	return edit, true
}

func (s *Server) handleEditQuestion(c *gin.Context) {
	edit, ok := s.questionEdit(c)
	if !ok {
		return
	}
	q, err := s.core.Catalog.EditQuestion(c.Request.Context(), identity(c), c.Param("id"), edit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleReviseQuestion(c *gin.Context) {
	edit, ok := s.questionEdit(c)
	if !ok {
		return
	}
	q, err := s.core.Catalog.ReviseQuestion(c.Request.Context(), identity(c), c.Param("id"), edit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (s *Server) handleGetQuestion(c *gin.Context) {
	q, err := s.core.Catalog.GetQuestion(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(c *gin.Context) {
	if err := s.core.Catalog.DeleteQuestion(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListQuestions(c *gin.Context) {
	includeDeleted, _ := strconv.ParseBool(c.Query("include_deleted"))
	filter := app.QuestionFilter{
		ClientID:       c.Query("client_id"),
		Type:           domain.QuestionType(c.Query("type")),
		Difficulty:     domain.Difficulty(c.Query("difficulty")),
		Tag:            c.Query("tag"),
		TextContains:   c.Query("q"),
		IncludeDeleted: includeDeleted,
	}
	offset, limit := pageParams(c)
	items, err := app.Collect(s.core.Catalog.ListQuestions(c.Request.Context(), identity(c), filter), offset, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[domain.Question]{Items: items, Offset: offset, Limit: limit})
}
