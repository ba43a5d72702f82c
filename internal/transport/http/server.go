package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/metrics"
)

// Options configures the HTTP adapter.
type Options struct {
	Secret     []byte
	TokenTTL   time.Duration
	LoginRate  float64
	LoginBurst int
	Log        *zap.Logger
}

// Server is the REST and websocket adapter over the core.
type Server struct {
	core   *app.Core
	tokens *TokenIssuer
	login  *loginLimiter
	ws     *WSHandler
	log    *zap.Logger
}

func NewServer(core *app.Core, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	s := &Server{
		core:   core,
		tokens: NewTokenIssuer(opts.Secret, opts.TokenTTL),
		login:  newLoginLimiter(opts.LoginRate, opts.LoginBurst),
		log:    opts.Log,
	}
	s.ws = NewWSHandler(core, s.resolve, opts.Log)
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/auth/login", s.handleLogin)
	r.GET("/ws/grading", s.ws.ServeGrading)

	api := r.Group("/", s.authenticate())
	api.POST("/auth/logout", s.handleLogout)
	api.GET("/me", s.handleMe)
	api.POST("/me/client", s.handleSwitchClient)

	api.POST("/users", s.handleProvisionUser)
	api.GET("/users/:id", s.handleGetUser)
	api.DELETE("/users/:id", s.handleDeactivateUser)

	api.POST("/clients", s.handleCreateClient)
	api.GET("/clients", s.handleListClients)
	api.GET("/clients/:id", s.handleGetClient)
	api.DELETE("/clients/:id", s.handleDeactivateClient)
	api.PUT("/clients/:id/plan", s.handleUpdatePlan)
	api.POST("/clients/:id/users", s.handleAddUserToClient)
	api.GET("/clients/:id/seats", s.handleSeatUsage)
	api.GET("/clients/:id/batches", s.handleListBatches)
	api.GET("/clients/:id/stats", s.handleDashboard)

	api.POST("/batches", s.handleCreateBatch)
	api.POST("/batches/:id/users", s.handleAssignBatch)

	api.POST("/questions", s.handleCreateQuestion)
	api.GET("/questions", s.handleListQuestions)
	api.GET("/questions/:id", s.handleGetQuestion)
	api.PATCH("/questions/:id", s.handleEditQuestion)
	api.POST("/questions/:id/revisions", s.handleReviseQuestion)
	api.DELETE("/questions/:id", s.handleDeleteQuestion)

	api.POST("/assessments", s.handleComposeAssessment)
	api.GET("/assessments", s.handleListAssessments)
	api.GET("/assessments/:id", s.handleGetAssessment)
	api.POST("/assessments/:id/publish", s.handlePublish)
	api.POST("/assessments/:id/retire", s.handleRetire)
	api.GET("/assessments/:id/order", s.handleQuestionOrder)
	api.GET("/assessments/:id/questions/:qid/options", s.handleOptionOrder)
	api.GET("/assessments/:id/sheet", s.handleSheet)
	api.PUT("/assessments/:id/submission", s.handleSubmit)
	api.GET("/assessments/:id/submissions/:userID", s.handleGetSubmission)
	api.GET("/assessments/:id/report", s.handleReport)
	api.GET("/assessments/:id/report.xlsx", s.handleReportWorkbook)

	api.GET("/submissions/:id", s.handleGetSubmissionByID)
	api.GET("/submissions/:id/score", s.handleAggregateScore)
	api.GET("/submissions/:id/scorecard.pdf", s.handleScorecard)
	api.POST("/grades", s.handleRecordGrade)
	api.POST("/grades/bulk", s.handleBulkGrade)

	api.POST("/notifications", s.handlePostNotification)
	api.GET("/notifications", s.handleListNotifications)
	return r
}

// observe records latency per route and logs each request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		)
	}
}

// pageParams reads offset and limit query parameters.
func pageParams(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}
