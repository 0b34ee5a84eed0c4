package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/perkway/internal/loyalty/domain"
	"github.com/smallbiznis/perkway/pkg/db/pagination"
)

func (s *Server) registerLoyaltyRoutes(r *gin.RouterGroup) {
	g := r.Group("/loyalty")
	g.POST("/enroll", s.enroll)
	g.POST("/points/award", s.awardPoints)
	g.POST("/points/redeem", s.redeemPoints)
	g.POST("/points/expire", s.expirePoints)
	g.POST("/orders", s.processOrderPoints)
	g.GET("/accounts/:customer_id", s.getAccount)
	g.GET("/accounts/:customer_id/history", s.accountHistory)
	g.POST("/accounts/:customer_id/deactivate", s.deactivateAccount)
	g.POST("/accounts/:customer_id/reactivate", s.reactivateAccount)
}

func (s *Server) enroll(c *gin.Context) {
	var req domain.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidCustomerID)
		return
	}

	result, err := s.loyalty.Enroll(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	status := http.StatusCreated
	if result.AlreadyEnrolled {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *Server) awardPoints(c *gin.Context) {
	var req domain.AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidCustomerID)
		return
	}

	result, err := s.loyalty.AwardPoints(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) redeemPoints(c *gin.Context) {
	var req domain.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidCustomerID)
		return
	}

	result, err := s.loyalty.RedeemPoints(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) processOrderPoints(c *gin.Context) {
	var req domain.ProcessOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidOrderID)
		return
	}

	result, err := s.loyalty.ProcessOrderPoints(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) expirePoints(c *gin.Context) {
	summary, err := s.loyalty.ClearExpiredPoints(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getAccount(c *gin.Context) {
	detail, err := s.loyalty.GetAccount(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) accountHistory(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		abort(c, err)
		return
	}

	txns, pageInfo, err := s.loyalty.History(c.Request.Context(), c.Param("customer_id"), p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "page_info": pageInfo})
}

func (s *Server) deactivateAccount(c *gin.Context) {
	if err := s.loyalty.Deactivate(c.Request.Context(), c.Param("customer_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reactivateAccount(c *gin.Context) {
	if err := s.loyalty.Reactivate(c.Request.Context(), c.Param("customer_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
