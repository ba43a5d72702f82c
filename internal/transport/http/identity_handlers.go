package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Identity  domain.Identity `json:"identity"`
}

type switchClientRequest struct {
	ClientID string `json:"client_id"`
}

// publicUser strips the credential hash before a user leaves the process.
func publicUser(u domain.User) domain.User {
	u.PasswordHash = nil
	return u
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.login.allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, errorBody{Error: "too many login attempts"})
		return
	}
	var creds app.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "invalid login payload")
		return
	}
	id, err := s.core.Identity.Authenticate(c.Request.Context(), creds)
	if err != nil {
		if domain.KindOf(err) == domain.ErrAuth {
			c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error(), Kind: "auth"})
			return
		}
		s.writeError(c, err)
		return
	}
	token, exp, err := s.tokens.Issue(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, Identity: id})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.core.Identity.Logout(c.Request.Context(), identity(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, identity(c))
}

func (s *Server) handleSwitchClient(c *gin.Context) {
	var req switchClientRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" {
		badRequest(c, "client_id is required")
		return
	}
	id, err := s.core.Identity.SwitchClient(c.Request.Context(), identity(c), req.ClientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (s *Server) handleProvisionUser(c *gin.Context) {
	var nu app.NewUser
	if err := c.ShouldBindJSON(&nu); err != nil {
		badRequest(c, "invalid user payload")
		return
	}
	u, err := s.core.Identity.ProvisionUser(c.Request.Context(), identity(c), nu)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, publicUser(u))
}

func (s *Server) handleGetUser(c *gin.Context) {
	u, err := s.core.Identity.GetUser(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

func (s *Server) handleDeactivateUser(c *gin.Context) {
	if err := s.core.Identity.DeactivateUser(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
