package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/config"
	"reserva-backend/internal/metrics"
	"reserva-backend/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ctxRequestID = "requestId"
	ctxClaims    = "claims"
)

type Server struct {
	cfg     config.Config
	orders  *usecase.OrderService
	auth    *usecase.AuthService
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
	engine  *gin.Engine
}

func New(cfg config.Config, orders *usecase.OrderService, auth *usecase.AuthService, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:     cfg,
		orders:  orders,
		auth:    auth,
		metrics: m,
		log:     log,
		now:     time.Now,
		engine:  gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(s.requestID, s.cors, s.accessLog, gin.CustomRecovery(s.recover))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api", s.authenticate)
	orders := api.Group("/orders")
	orders.POST("", s.handleCreateOrder)
	orders.GET("/:id", s.handleGetOrder)
	orders.GET("/:id/stream", s.handleStreamOrder)
	orders.GET("/:id/timer", s.handleTimer)
	orders.POST("/:id/revision/total", s.handleRevisionTotal)
	orders.POST("/:id/accept", s.handleAccept)
	orders.POST("/:id/payment", s.handlePayment)
	orders.DELETE("/:id", s.handleCancel)

	staff := api.Group("/staff/orders/:id", s.requireStaff)
	staff.GET("", s.handleStaffGet)
	staff.POST("/review/start", s.handleBeginReview)
	staff.POST("/review", s.handleSubmitReview)
	staff.POST("/reject-change", s.handleRejectChange)
	staff.POST("/status", s.handleAdvance)
}

// requestID tags the request for logs and error envelopes. An Idempotency-Key
// is only reused as the id; repeated requests are not deduplicated.
func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader("X-Request-Id")
	if id == "" {
		id = c.GetHeader("Idempotency-Key")
	}
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ctxRequestID, id)
	c.Header("X-Request-Id", id)
	c.Next()
}

func (s *Server) cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "*")
	c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	s.metrics.ObserveRequest(route, c.Writer.Status(), float64(elapsed.Milliseconds()))
	s.log.Info("http request",
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", elapsed),
		zap.String("request_id", c.GetString(ctxRequestID)),
	)
}

func (s *Server) recover(c *gin.Context, v any) {
	s.log.Error("panic in handler", zap.Any("panic", v), zap.String("route", c.FullPath()))
	s.err(c, http.StatusInternalServerError, "ServerError", "internal error", "")
}

func (s *Server) authenticate(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		s.fail(c, apperr.Unauthorized("missing bearer token"))
		return
	}
	claims, err := s.auth.Verify(strings.TrimSpace(token))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(ctxClaims, claims)
	c.Next()
}

func (s *Server) requireStaff(c *gin.Context) {
	if !claimsOf(c).IsStaff() {
		s.fail(c, apperr.Forbidden("staff only"))
		return
	}
	c.Next()
}

func claimsOf(c *gin.Context) usecase.Claims {
	v, _ := c.Get(ctxClaims)
	cl, _ := v.(usecase.Claims)
	return cl
}

// fail writes err in the error envelope and aborts the chain. Internal
// causes are logged, never sent.
func (s *Server) fail(c *gin.Context, err error) {
	var ae *apperr.AppError
	if !errors.As(err, &ae) {
		ae = apperr.Persistence(err)
	}
	status := apperr.StatusCode(ae)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err),
		)
	}
	s.err(c, status, ae.Code(), ae.Message, ae.Field)
}

func (s *Server) err(c *gin.Context, status int, code, msg, field string) {
	body := gin.H{
		"code":      code,
		"message":   msg,
		"requestId": c.GetString(ctxRequestID),
	}
	if field != "" {
		body["field"] = field
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
