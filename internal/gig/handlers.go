package gig

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gigboard/gigboard/internal/ledger"
)

// Handler provides HTTP endpoints for gig operations. The acting
// principal is taken from the X-Principal header; authentication proper
// is left to the deployment's edge.
type Handler struct {
	service *Service
}

// NewHandler creates a new gig handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up gig routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/gigs", h.PostGig)
	r.GET("/gigs/:id", h.GetGig)
	r.GET("/gigs", h.ListGigs)
	r.GET("/principals/:principal/gigs", h.ListByPrincipal)
	r.POST("/gigs/:id/claim", h.ClaimGig)
	r.POST("/gigs/:id/submit", h.SubmitGig)
	r.POST("/gigs/:id/approve", h.ApproveGig)
	r.POST("/gigs/:id/reject", h.RejectGig)
	r.POST("/gigs/:id/cancel", h.CancelGig)
}

// PostGig handles POST /v1/gigs
func (h *Handler) PostGig(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "posterId, title and payment are required",
		})
		return
	}

	caller := c.GetHeader("X-Principal")
	if caller != "" && caller != req.PosterID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Caller must be the poster",
		})
		return
	}

	g, err := h.service.Post(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "post_failed"
		switch {
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case isInsufficientFunds(err):
			status = http.StatusPaymentRequired
			code = "insufficient_funds"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"gig": g})
}

// GetGig handles GET /v1/gigs/:id
func (h *Handler) GetGig(c *gin.Context) {
	g, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrGigNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Gig not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

// ListGigs handles GET /v1/gigs?status=open
func (h *Handler) ListGigs(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusOpen)))
	gigs, err := h.service.ListByStatus(c.Request.Context(), status, queryLimit(c))
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_status",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gigs":  gigs,
		"count": len(gigs),
	})
}

// ListByPrincipal handles GET /v1/principals/:principal/gigs
func (h *Handler) ListByPrincipal(c *gin.Context) {
	gigs, err := h.service.ListByPrincipal(c.Request.Context(), c.Param("principal"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gigs":  gigs,
		"count": len(gigs),
	})
}

// ClaimGig handles POST /v1/gigs/:id/claim
func (h *Handler) ClaimGig(c *gin.Context) {
	caller := c.GetHeader("X-Principal")
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_principal",
			"message": "X-Principal header is required",
		})
		return
	}

	g, err := h.service.Claim(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeOperationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

// SubmitGig handles POST /v1/gigs/:id/submit
func (h *Handler) SubmitGig(c *gin.Context) {
	caller := c.GetHeader("X-Principal")
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_principal",
			"message": "X-Principal header is required",
		})
		return
	}

	g, err := h.service.Submit(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeOperationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

// ApproveGig handles POST /v1/gigs/:id/approve
func (h *Handler) ApproveGig(c *gin.Context) {
	caller := c.GetHeader("X-Principal")
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_principal",
			"message": "X-Principal header is required",
		})
		return
	}

	g, err := h.service.Approve(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeOperationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

// RejectRequest carries the poster's reason for sending work back.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectGig handles POST /v1/gigs/:id/reject
func (h *Handler) RejectGig(c *gin.Context) {
	caller := c.GetHeader("X-Principal")
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_principal",
			"message": "X-Principal header is required",
		})
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Reason is required",
		})
		return
	}

	g, err := h.service.Reject(c.Request.Context(), c.Param("id"), caller, req.Reason)
	if err != nil {
		writeOperationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

// CancelGig handles POST /v1/gigs/:id/cancel
func (h *Handler) CancelGig(c *gin.Context) {
	caller := c.GetHeader("X-Principal")
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_principal",
			"message": "X-Principal header is required",
		})
		return
	}

	g, err := h.service.Cancel(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeOperationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gig": g})
}

func writeOperationError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrGigNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds)
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}
	return limit
}
