package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/jobs"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
)

// changeTimeout bounds the synchronous part of a change notification
const changeTimeout = 5 * time.Second

// changeRequest is the provider change notification payload
type changeRequest struct {
	Action         string                 `json:"action" binding:"required"`
	ProviderConfig *models.ProviderConfig `json:"providerConfig,omitempty"`
}

var eventJobs = map[jobs.Action]string{
	jobs.ActionAdded:             jobs.JobProviderAdded,
	jobs.ActionEnabled:           jobs.JobProviderEnabled,
	jobs.ActionCategoriesChanged: jobs.JobCategoriesChanged,
	jobs.ActionDeleted:           jobs.JobProviderDeleted,
}

// providerChanged accepts a provider lifecycle notification. The config
// change is applied within a bounded window; the ingestion work itself is
// dispatched asynchronously and its outcome never reaches the caller.
func (s *Server) providerChanged(c *gin.Context) {
	providerID := c.Param("id")

	var req changeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	action, ok := jobs.ParseAction(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), changeTimeout)
	defer cancel()

	if err := s.applyChange(ctx, providerID, action, req.ProviderConfig); err != nil {
		// The notification contract is fire-and-forget: the change is
		// logged and the timer jobs re-cover it later
		logger.AppLogger().WithProvider(providerID).Error("failed to apply provider change", err)
	}

	s.queue.Enqueue(action, providerID)
	s.trigger.Trigger(eventJobs[action])

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "action": string(action)})
}

// applyChange persists the config side of a change notification
func (s *Server) applyChange(ctx context.Context, providerID string, action jobs.Action, cfg *models.ProviderConfig) error {
	switch action {
	case jobs.ActionAdded:
		if cfg == nil {
			// Caller created the provider elsewhere; nothing to persist
			_, err := s.stores.Providers.Get(ctx, providerID)
			return err
		}
		cfg.ID = providerID
		err := s.stores.Providers.Create(ctx, cfg)
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			return s.stores.Providers.Update(ctx, cfg)
		}
		return err

	case jobs.ActionEnabled:
		// The toggle action covers both directions; the event job reads
		// the stored flag to decide between resync and withdrawal
		if cfg != nil {
			cfg.ID = providerID
			return s.stores.Providers.Update(ctx, cfg)
		}
		return nil

	case jobs.ActionCategoriesChanged:
		if cfg == nil {
			return nil
		}
		cfg.ID = providerID
		return s.stores.Providers.Update(ctx, cfg)

	case jobs.ActionDeleted:
		return s.stores.Providers.SoftDelete(ctx, providerID)
	}
	return nil
}

// listJobs returns every registered job record
func (s *Server) listJobs(c *gin.Context) {
	records, err := s.stores.Jobs.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

// listProviders returns every non-deleted provider with credentials redacted
func (s *Server) listProviders(c *gin.Context) {
	configs, err := s.stores.Providers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list providers"})
		return
	}
	for i := range configs {
		configs[i].Password = ""
	}
	c.JSON(http.StatusOK, gin.H{"providers": configs})
}

// createProvider registers a new provider and schedules its first sync
func (s *Server) createProvider(c *gin.Context) {
	var cfg models.ProviderConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.stores.Providers.Create(c.Request.Context(), &cfg); err != nil {
		switch {
		case apperrors.IsCode(err, apperrors.CodeValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case apperrors.IsCode(err, apperrors.CodeConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.AppLogger().Error("failed to create provider", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create provider"})
		}
		return
	}

	if cfg.Active() {
		s.queue.Enqueue(jobs.ActionAdded, cfg.ID)
		s.trigger.Trigger(jobs.JobProviderAdded)
	}

	cfg.Password = ""
	c.JSON(http.StatusCreated, gin.H{"provider": cfg})
}

// health reports engine liveness including database reachability
func (s *Server) health(c *gin.Context) {
	if err := s.check(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
