package server

import (
	"net/http"

	"reserva-backend/internal/domain"
	"reserva-backend/internal/usecase"

	"github.com/gin-gonic/gin"
)

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json", "")
		return false
	}
	return true
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req usecase.CreateOrderData
	if !s.bind(c, &req) {
		return
	}
	o, err := s.orders.Create(c.Request.Context(), claimsOf(c).UserID, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	o, err := s.orders.Get(c.Request.Context(), claimsOf(c).UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleTimer(c *gin.Context) {
	tv, err := s.orders.TimerSnapshot(c.Request.Context(), claimsOf(c).UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tv)
}

func (s *Server) handleRevisionTotal(c *gin.Context) {
	var req revisionReq
	if !s.bind(c, &req) {
		return
	}
	actions, err := req.decode()
	if err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.orders.RevisionTotal(c.Request.Context(), claimsOf(c).UserID, c.Param("id"), actions)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleAccept(c *gin.Context) {
	var req revisionReq
	if !s.bind(c, &req) {
		return
	}
	actions, err := req.decode()
	if err != nil {
		s.fail(c, err)
		return
	}
	o, err := s.orders.AcceptRevision(c.Request.Context(), claimsOf(c).UserID, c.Param("id"), actions)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type paymentReq struct {
	Method domain.PaymentMethod `json:"method"`
	Amount string               `json:"amount"`
}

func (s *Server) handlePayment(c *gin.Context) {
	var req paymentReq
	if !s.bind(c, &req) {
		return
	}
	o, err := s.orders.ResolvePayment(c.Request.Context(), claimsOf(c).UserID, c.Param("id"), req.Method, req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.orders.Cancel(c.Request.Context(), claimsOf(c).UserID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStaffGet(c *gin.Context) {
	o, err := s.orders.GetAny(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleBeginReview(c *gin.Context) {
	o, err := s.orders.BeginReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleSubmitReview(c *gin.Context) {
	var req usecase.ReviewData
	if !s.bind(c, &req) {
		return
	}
	o, err := s.orders.SubmitReview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleRejectChange(c *gin.Context) {
	o, err := s.orders.RejectChange(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type statusReq struct {
	Status  domain.OrderStatus `json:"estado"`
	Comment string             `json:"comentario"`
}

func (s *Server) handleAdvance(c *gin.Context) {
	var req statusReq
	if !s.bind(c, &req) {
		return
	}
	o, err := s.orders.Advance(c.Request.Context(), c.Param("id"), req.Status, req.Comment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
