package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createWasherRequest struct {
	WasherID string `json:"washerId" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

// CreateWasher handles POST /api/washers: creates the payout account at the
// gateway and registers the mapping.
func (h *Handler) CreateWasher(c *gin.Context) {
	var req createWasherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	acct, err := h.registry.CreateAccount(c.Request.Context(), req.WasherID, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"washerId":          acct.WasherID,
		"externalAccountId": acct.ExternalAccountID,
		"onboardingState":   acct.OnboardingState,
	})
}

// GetWasher handles GET /api/washers/:id.
func (h *Handler) GetWasher(c *gin.Context) {
	acct, err := h.registry.Account(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"washerId":        acct.WasherID,
		"onboardingState": acct.OnboardingState,
	})
}

// WasherOnboardingLink handles POST /api/washers/:id/onboarding-link.
func (h *Handler) WasherOnboardingLink(c *gin.Context) {
	url, err := h.registry.OnboardingLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// RefreshWasher handles POST /api/washers/:id/refresh: re-checks payout
// capability with the gateway.
func (h *Handler) RefreshWasher(c *gin.Context) {
	state, err := h.registry.RefreshOnboardingState(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"washerId":        c.Param("id"),
		"onboardingState": state,
	})
}
