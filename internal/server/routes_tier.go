package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/perkway/internal/tier/domain"
)

func (s *Server) registerTierRoutes(r *gin.RouterGroup) {
	g := r.Group("/tiers")
	g.GET("", s.listTiers)
	g.POST("", s.createTier)
	g.GET("/:id", s.getTier)
	g.PATCH("/:id", s.updateTier)
	g.DELETE("/:id", s.deactivateTier)
}

func (s *Server) listTiers(c *gin.Context) {
	var tiers []domain.Tier
	var err error
	if c.Query("active") == "true" {
		tiers, err = s.tiers.ListActive(c.Request.Context())
	} else {
		tiers, err = s.tiers.List(c.Request.Context())
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (s *Server) createTier(c *gin.Context) {
	var req domain.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidCode)
		return
	}

	tier, err := s.tiers.Create(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, tier)
}

func (s *Server) getTier(c *gin.Context) {
	tier, err := s.tiers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, tier)
}

func (s *Server) updateTier(c *gin.Context) {
	var req domain.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidCode)
		return
	}
	req.TierID = c.Param("id")

	tier, err := s.tiers.Update(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, tier)
}

func (s *Server) deactivateTier(c *gin.Context) {
	if err := s.tiers.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
