package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

type userRef struct {
	UserID string `json:"user_id"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func (s *Server) handleCreateClient(c *gin.Context) {
	var nc app.NewClient
	if err := c.ShouldBindJSON(&nc); err != nil {
		badRequest(c, "invalid client payload")
		return
	}
	client, err := s.core.Tenants.CreateClient(c.Request.Context(), identity(c), nc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (s *Server) handleListClients(c *gin.Context) {
	status := domain.ClientStatus(c.Query("status"))
	if status == "all" {
		status = ""
	}
	offset, limit := pageParams(c)
	seq := s.core.Tenants.ListClients(c.Request.Context(), identity(c), app.ClientFilter{Status: status, Search: c.Query("search")})
	items, err := app.Collect(seq, offset, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[domain.Client]{Items: items, Offset: offset, Limit: limit})
}

func (s *Server) handleGetClient(c *gin.Context) {
	client, err := s.core.Tenants.GetClient(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (s *Server) handleDeactivateClient(c *gin.Context) {
	if err := s.core.Tenants.DeactivateClient(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdatePlan(c *gin.Context) {
	var pu app.PlanUpdate
	if err := c.ShouldBindJSON(&pu); err != nil {
		badRequest(c, "invalid plan payload")
		return
	}
	client, err := s.core.Tenants.UpdateClientPlan(c.Request.Context(), identity(c), c.Param("id"), pu)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (s *Server) handleAddUserToClient(c *gin.Context) {
	var ref userRef
	if err := c.ShouldBindJSON(&ref); err != nil || ref.UserID == "" {
		badRequest(c, "user_id is required")
		return
	}
	u, err := s.core.Tenants.AddUserToClient(c.Request.Context(), identity(c), c.Param("id"), ref.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

func (s *Server) handleSeatUsage(c *gin.Context) {
	seats, err := s.core.Tenants.SeatUsage(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seats)
}

func (s *Server) handleListBatches(c *gin.Context) {
	batches, err := s.core.Tenants.ListBatches(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": batches})
}

func (s *Server) handleDashboard(c *gin.Context) {
	stats, err := s.core.Stats.Dashboard(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCreateBatch(c *gin.Context) {
	var nb app.NewBatch
	if err := c.ShouldBindJSON(&nb); err != nil {
		badRequest(c, "invalid batch payload")
		return
	}
	b, err := s.core.Tenants.CreateBatch(c.Request.Context(), identity(c), nb)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) handleAssignBatch(c *gin.Context) {
	var ref userRef
	if err := c.ShouldBindJSON(&ref); err != nil || ref.UserID == "" {
		badRequest(c, "user_id is required")
		return
	}
	u, err := s.core.Tenants.AssignUserToBatch(c.Request.Context(), identity(c), c.Param("id"), ref.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

func (s *Server) handlePostNotification(c *gin.Context) {
	var nn app.NewNotification
	if err := c.ShouldBindJSON(&nn); err != nil {
		badRequest(c, "invalid notification payload")
		return
	}
	n, err := s.core.Notifications.Post(c.Request.Context(), identity(c), nn)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	items, err := s.core.Notifications.List(c.Request.Context(), identity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
