package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"laundryspot-backend/internal/apperr"
	"laundryspot-backend/internal/model"
)

type createJobRequest struct {
	CustomerName string `json:"customerName" binding:"required"`
	Address      string `json:"address" binding:"required"`
	Notes        string `json:"notes"`
}

// CreateJob handles POST /api/jobs.
func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	job, err := h.engine.CreateJob(c.Request.Context(), req.CustomerName, req.Address, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}

	if h.announcer != nil {
		h.announcer.Announce(*job)
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

// ListJobs handles GET /api/jobs?status=pending.
func (h *Handler) ListJobs(c *gin.Context) {
	status := model.JobStatus(c.DefaultQuery("status", string(model.StatusPending)))
	if !status.Valid() {
		fail(c, apperr.New(apperr.KindValidation, "unknown status %q", status))
		return
	}

	jobs, err := h.engine.ListJobs(c.Request.Context(), status)
	if err != nil {
		fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func jobIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, apperr.New(apperr.KindValidation, "invalid job id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

type acceptJobRequest struct {
	WasherID string `json:"washerId" binding:"required"`
}

// AcceptJob handles POST /api/jobs/:id/accept.
func (h *Handler) AcceptJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}
	var req acceptJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	job, err := h.engine.AcceptJob(c.Request.Context(), id, req.WasherID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

type cancelJobRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}

// CancelJob handles POST /api/jobs/:id/cancel.
func (h *Handler) CancelJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}
	var req cancelJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	job, err := h.engine.CancelJob(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

type payJobRequest struct {
	PaymentMethodRef string `json:"paymentMethodRef" binding:"required"`
}

// PayJob handles POST /api/jobs/:id/pay.
func (h *Handler) PayJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}
	var req payJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	job, err := h.coordinator.ChargeJob(c.Request.Context(), id, req.PaymentMethodRef)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":              job,
		"paymentReference": job.PaymentReference,
	})
}
