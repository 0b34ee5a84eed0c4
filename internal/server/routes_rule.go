package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/perkway/internal/pointsrule/domain"
)

func (s *Server) registerRuleRoutes(r *gin.RouterGroup) {
	g := r.Group("/points-rules")
	g.GET("", s.listRules)
	g.POST("", s.createRule)
	g.GET("/:id", s.getRule)
	g.PATCH("/:id", s.updateRule)
}

func (s *Server) listRules(c *gin.Context) {
	rules, err := s.rules.List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (s *Server) createRule(c *gin.Context) {
	var req domain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidValue)
		return
	}

	rule, err := s.rules.Create(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) getRule(c *gin.Context) {
	rule, err := s.rules.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	var req domain.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidValue)
		return
	}
	req.RuleID = c.Param("id")

	rule, err := s.rules.Update(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
