package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/fabriko/fabriko/internal/billing/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	resp, err := s.billingSvc.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscription(c *gin.Context) {
	resp, err := s.billingSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type checkoutRequest struct {
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
	SuccessURL   string `json:"success_url"`
	CancelURL    string `json:"cancel_url"`
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "plan_id is required"))
		return
	}

	resp, err := s.billingSvc.Checkout(c.Request.Context(), billingdomain.CheckoutRequest{
		PlanID:       strings.TrimSpace(req.PlanID),
		BillingCycle: strings.TrimSpace(req.BillingCycle),
		SuccessURL:   strings.TrimSpace(req.SuccessURL),
		CancelURL:    strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type changePlanRequest struct {
	PlanID       string  `json:"plan_id"`
	BillingCycle *string `json:"billing_cycle"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "plan_id is required"))
		return
	}

	resp, err := s.billingSvc.ChangePlan(c.Request.Context(), billingdomain.ChangePlanRequest{
		PlanID:       strings.TrimSpace(req.PlanID),
		BillingCycle: req.BillingCycle,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelRequest struct {
	CancelAtPeriodEnd *bool   `json:"cancel_at_period_end"`
	Reason            *string `json:"reason"`
}

func (s *Server) CancelSubscription(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.billingSvc.Cancel(c.Request.Context(), billingdomain.CancelRequest{
		CancelAtPeriodEnd: req.CancelAtPeriodEnd,
		Reason:            req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	resp, err := s.billingSvc.Reactivate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
