package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/vigil/internal/health"
	"github.com/mbd888/vigil/internal/history"
	"github.com/mbd888/vigil/internal/logging"
	"github.com/mbd888/vigil/internal/metrics"
	"github.com/mbd888/vigil/internal/profile"
	"github.com/mbd888/vigil/internal/reputation"
	"github.com/mbd888/vigil/internal/risk"
	"github.com/mbd888/vigil/internal/validation"
)

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// createUser handles POST /v1/users
func (s *Server) createUser(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		UserID   string `json:"userId" binding:"required"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "user id must be 1-64 alphanumeric, dash, or underscore characters",
		})
		return
	}

	p := &profile.UserProfile{
		UserID:   req.UserID,
		Email:    validation.SanitizeString(req.Email, 200),
		FullName: validation.SanitizeString(req.FullName, 200),
	}
	if req.DeviceID != "" {
		p.KnownDevices = []string{validation.SanitizeString(req.DeviceID, 128)}
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, profile.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "user_exists",
				"message": "A user with this id is already registered",
			})
			return
		}
		logging.L(ctx).Error("failed to create user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create user",
		})
		return
	}

	// Re-read so the response carries store-applied defaults (tier, timestamps).
	if created, err := s.profiles.GetByUserID(ctx, p.UserID); err == nil {
		p = created
	}

	c.JSON(http.StatusCreated, p)
}

// getUser handles GET /v1/users/:userId
func (s *Server) getUser(c *gin.Context) {
	ctx := c.Request.Context()

	p, err := s.profiles.GetByUserID(ctx, c.Param("userId"))
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "No user with this id",
			})
			return
		}
		logging.L(ctx).Error("failed to load user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load user",
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// analyzeRequest is the transfer intent payload.
type analyzeRequest struct {
	UserID      string    `json:"userId"`
	Amount      int64     `json:"amount"` // minor currency units
	Payee       string    `json:"payee"`
	Note        string    `json:"note"`
	DeviceID    string    `json:"deviceId"`
	PaymentMode string    `json:"paymentMode"`
	Timestamp   time.Time `json:"timestamp"`
}

// analyzeTransaction handles POST /v1/transactions/analyze. It runs the full
// risk pipeline and returns the decision; the attempt is recorded for later
// confirmation regardless of outcome.
func (s *Server) analyzeTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.Payee = validation.SanitizePayee(req.Payee)

	if errs := validation.Validate(
		validation.Required("userId", req.UserID),
		validation.Required("payee", req.Payee),
		validation.ValidPayee("payee", req.Payee),
		validation.PositiveAmount("amount", req.Amount),
		validation.MaxLength("note", req.Note, validation.MaxNoteLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	intent := &risk.TransactionIntent{
		Amount:      req.Amount,
		Payee:       req.Payee,
		Note:        validation.SanitizeString(req.Note, validation.MaxNoteLength),
		DeviceID:    validation.SanitizeString(req.DeviceID, 128),
		PaymentMode: req.PaymentMode,
		Timestamp:   req.Timestamp,
	}

	d, err := s.engine.Evaluate(ctx, intent, req.UserID, risk.EvaluateOptions{Persist: true})
	if err != nil {
		switch {
		case errors.Is(err, risk.ErrInvalidIntent):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_intent",
				"message": err.Error(),
			})
		case errors.Is(err, risk.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "No user with this id",
			})
		default:
			logging.L(ctx).Error("analysis failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to analyze transaction",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decision":   d,
		"canProceed": d.CanProceed(),
	})
}

// getTransaction handles GET /v1/transactions/:id
func (s *Server) getTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	tx, err := s.txns.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "transaction_not_found",
				"message": "No transaction with this id",
			})
			return
		}
		logging.L(ctx).Error("failed to load transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// confirmTransaction handles POST /v1/transactions/:id/confirm. The client
// reports the terminal outcome of an analyzed transfer. A completed transfer
// also teaches the pipeline: the device becomes known and the payee's
// network-wide transaction count grows.
func (s *Server) confirmTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var status history.Status
	switch req.Status {
	case string(history.StatusCompleted):
		status = history.StatusCompleted
	case string(history.StatusFailed):
		status = history.StatusFailed
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be COMPLETED or FAILED",
		})
		return
	}

	id := c.Param("id")

	tx, err := s.txns.Get(ctx, id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "transaction_not_found",
				"message": "No transaction with this id",
			})
			return
		}
		logging.L(ctx).Error("failed to load transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction",
		})
		return
	}

	if tx.Status == history.StatusBlocked {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "transaction_blocked",
			"message": "A blocked transaction cannot be confirmed",
		})
		return
	}

	if err := s.txns.UpdateStatus(ctx, id, status); err != nil {
		logging.L(ctx).Error("failed to update transaction status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update transaction",
		})
		return
	}

	if status == history.StatusCompleted {
		if err := s.reputations.IncrementTotal(ctx, tx.Payee); err != nil {
			logging.L(ctx).Warn("failed to bump payee reputation", "payee", tx.Payee, "error", err)
		}
		if tx.DeviceID != "" {
			if err := s.profiles.AddKnownDevice(ctx, tx.UserID, tx.DeviceID); err != nil {
				logging.L(ctx).Warn("failed to record known device", "userId", tx.UserID, "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": status,
	})
}

// listTransactions handles GET /v1/users/:userId/transactions
func (s *Server) listTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	txs, err := s.txns.ListByUser(ctx, c.Param("userId"), parseLimit(c))
	if err != nil {
		logging.L(ctx).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// listDecisions handles GET /v1/users/:userId/decisions
func (s *Server) listDecisions(c *gin.Context) {
	ctx := c.Request.Context()

	ds, err := s.decisions.ListByUser(ctx, c.Param("userId"), parseLimit(c))
	if err != nil {
		logging.L(ctx).Error("failed to list decisions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list decisions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": ds,
		"count":     len(ds),
	})
}

// -----------------------------------------------------------------------------
// Payee reputation
// -----------------------------------------------------------------------------

// getPayeeReputation handles GET /v1/payees/:payee/reputation. An unknown
// payee returns the neutral standing rather than 404: absence of history is
// itself the answer.
func (s *Server) getPayeeReputation(c *gin.Context) {
	ctx := c.Request.Context()
	payee := validation.SanitizePayee(c.Param("payee"))

	if !validation.IsValidPayee(payee) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payee",
			"message": "payee must be a valid identifier (local@provider)",
		})
		return
	}

	rec, err := s.reputations.GetByPayee(ctx, payee)
	if err != nil {
		if errors.Is(err, reputation.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"payee":             payee,
				"isNew":             true,
				"totalTransactions": 0,
				"fraudCount":        0,
				"fraudRatio":        0.0,
			})
			return
		}
		logging.L(ctx).Error("failed to load reputation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load payee reputation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payee":             rec.Payee,
		"isNew":             false,
		"totalTransactions": rec.TotalTransactions,
		"fraudCount":        rec.FraudCount,
		"fraudRatio":        rec.FraudRatio(),
		"updatedAt":         rec.UpdatedAt,
	})
}

// reportFraud handles POST /v1/payees/:payee/fraud-report
func (s *Server) reportFraud(c *gin.Context) {
	ctx := c.Request.Context()
	payee := validation.SanitizePayee(c.Param("payee"))

	if !validation.IsValidPayee(payee) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payee",
			"message": "payee must be a valid identifier (local@provider)",
		})
		return
	}

	if err := s.reputations.ReportFraud(ctx, payee); err != nil {
		logging.L(ctx).Error("failed to record fraud report", "payee", payee, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record fraud report",
		})
		return
	}

	metrics.FraudReportsTotal.Inc()
	s.realtimeHub.EmitFraudReport(payee)

	c.JSON(http.StatusAccepted, gin.H{
		"payee":  payee,
		"status": "recorded",
	})
}

// -----------------------------------------------------------------------------
// Health & info
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Vigil",
		"description": "Risk decisioning for peer-to-peer transfers",
		"version":     "0.1.0",
		"scoringPath": s.scoringPath,
	})
}

func (s *Server) realtimeStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func parseLimit(c *gin.Context) int {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}
