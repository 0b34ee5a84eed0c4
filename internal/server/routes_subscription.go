package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/perkway/internal/subscription/domain"
)

func (s *Server) registerSubscriptionRoutes(r *gin.RouterGroup) {
	plans := r.Group("/plans")
	plans.GET("", s.listPlans)
	plans.POST("", s.createPlan)
	plans.GET("/:code", s.getPlan)
	plans.PATCH("/:code", s.updatePlan)

	subs := r.Group("/subscriptions")
	subs.POST("", s.subscribe)
	subs.GET("/:id", s.getSubscription)
	subs.GET("/:id/billing", s.billingHistory)
	subs.POST("/:id/cancel", s.cancelSubscription)
	subs.POST("/:id/reactivate", s.reactivateSubscription)
	subs.POST("/:id/pause", s.pauseSubscription)
	subs.POST("/:id/resume", s.resumeSubscription)
	subs.POST("/:id/change-plan", s.changePlan)
	subs.POST("/:id/renew", s.processRenewal)

	r.POST("/renewals/run", s.processAllDueRenewals)
	r.GET("/customers/:customer_id/subscriptions", s.listCustomerSubscriptions)
}

func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.subscriptions.ListPlans(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) createPlan(c *gin.Context) {
	var req domain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidPlan)
		return
	}

	plan, err := s.subscriptions.CreatePlan(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) getPlan(c *gin.Context) {
	plan, err := s.subscriptions.GetPlan(c.Request.Context(), c.Param("code"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) updatePlan(c *gin.Context) {
	plan, err := s.subscriptions.GetPlan(c.Request.Context(), c.Param("code"))
	if err != nil {
		abort(c, err)
		return
	}

	var req domain.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidPlan)
		return
	}
	req.PlanID = plan.ID.String()

	updated, err := s.subscriptions.UpdatePlan(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) subscribe(c *gin.Context) {
	var req domain.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidPlan)
		return
	}

	sub, err := s.subscriptions.Subscribe(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.subscriptions.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) listCustomerSubscriptions(c *gin.Context) {
	subs, err := s.subscriptions.ListByCustomer(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) billingHistory(c *gin.Context) {
	records, err := s.subscriptions.BillingHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"billing_records": records})
}

func (s *Server) cancelSubscription(c *gin.Context) {
	var req domain.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, domain.ErrInvalidStatus)
			return
		}
	}
	req.SubscriptionID = c.Param("id")

	sub, err := s.subscriptions.Cancel(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) reactivateSubscription(c *gin.Context) {
	sub, err := s.subscriptions.Reactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) pauseSubscription(c *gin.Context) {
	sub, err := s.subscriptions.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) resumeSubscription(c *gin.Context) {
	sub, err := s.subscriptions.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) changePlan(c *gin.Context) {
	var req domain.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, domain.ErrInvalidPlan)
		return
	}
	req.SubscriptionID = c.Param("id")

	sub, err := s.subscriptions.ChangePlan(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) processRenewal(c *gin.Context) {
	result, err := s.subscriptions.ProcessRenewal(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) processAllDueRenewals(c *gin.Context) {
	result, err := s.subscriptions.ProcessAllDueRenewals(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
