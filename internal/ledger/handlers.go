package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gigboard/gigboard/internal/idgen"
)

// Handler provides HTTP endpoints for balance operations.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new ledger handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up ledger routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/principals/:principal/balance", h.GetBalance)
	r.GET("/principals/:principal/ledger", h.GetHistory)
	r.POST("/principals/:principal/deposit", h.Deposit)
}

// GetBalance handles GET /v1/principals/:principal/balance
func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.ledger.GetBalance(c.Request.Context(), c.Param("principal"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

// GetHistory handles GET /v1/principals/:principal/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	entries, next, err := h.ledger.History(c.Request.Context(), c.Param("principal"), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_cursor",
				"message": "cursor is malformed",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	resp := gin.H{
		"entries": entries,
		"count":   len(entries),
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// DepositRequest funds a principal's balance.
type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Deposit handles POST /v1/principals/:principal/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is required",
		})
		return
	}

	principal := c.Param("principal")
	err := h.ledger.Credit(c.Request.Context(), principal, req.Amount, idgen.WithPrefix("dep_"), "deposit")
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case errors.Is(err, ErrAccountNotFound):
			status = http.StatusBadRequest
			code = "invalid_principal"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	bal, err := h.ledger.GetBalance(c.Request.Context(), principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": bal})
}
