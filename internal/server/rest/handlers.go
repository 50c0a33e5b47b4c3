package rest

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/admission"
	"github.com/andrejs2008/evomint/internal/server/auth"
	"github.com/andrejs2008/evomint/internal/server/credentials"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
	"github.com/andrejs2008/evomint/internal/server/metrics"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// Handlers binds the HTTP surface to the domain services.
type Handlers struct {
	lifecycle   *lifecycle.Service
	admission   *admission.Service
	credentials *credentials.Service
	hub         *Hub
	logger      logging.Logger

	adminSecret   []byte
	tokenValidity time.Duration
	quotaSeedPath string
}

// renderError maps domain errors onto HTTP statuses. Anything unmapped is
// a 500 with the detail kept out of the reply.
func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": err.Error()})
	case errors.Is(err, common.ErrCapacityExhausted):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "capacity exhausted",
			"detail":   err.Error(),
			"waitlist": "POST /api/v1/waitlist to register interest",
		})
	case errors.Is(err, common.ErrSweepActive):
		c.JSON(http.StatusConflict, gin.H{"error": "sweep active", "detail": err.Error()})
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": err.Error()})
	default:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": "internal error"})
	}
}

func (h *Handlers) createItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
		return
	}

	res, err := h.lifecycle.CreateItem(c.Request.Context(), lifecycle.CreateRequest{
		Owner:               req.Owner,
		Creator:             req.Creator,
		Category:            req.Category,
		Mode:                req.Mode,
		Prompt:              req.Prompt,
		Name:                req.Name,
		Description:         req.Description,
		Unique:              req.Uniqueness.inputs(),
		EvolutionPeriodDays: req.EvolutionPeriodDays,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMintResponse(res.Item, res.Remote, res.DualStorageStatus))
}

func (h *Handlers) breedItem(c *gin.Context) {
	var req breedItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
		return
	}

	res, err := h.lifecycle.BreedItem(c.Request.Context(), lifecycle.BreedRequest{
		Owner:               req.Owner,
		Creator:             req.Creator,
		Category:            req.Category,
		ParentIDs:           req.ParentIDs,
		Name:                req.Name,
		Description:         req.Description,
		Unique:              req.Uniqueness.inputs(),
		EvolutionPeriodDays: req.EvolutionPeriodDays,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMintResponse(res.Item, res.Remote, res.DualStorageStatus))
}

func (h *Handlers) listItems(c *gin.Context) {
	items, err := h.lifecycle.ListItems(c.Request.Context(), c.Query("owner"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *Handlers) getItem(c *gin.Context) {
	item, err := h.lifecycle.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItemResponse(item))
}

func (h *Handlers) getHistory(c *gin.Context) {
	history, err := h.lifecycle.GetEvolutionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": c.Param("id"), "history": history})
}

func (h *Handlers) getImageURL(c *gin.Context) {
	url, err := h.lifecycle.ImageURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": c.Param("id"), "image_url": url})
}

func (h *Handlers) evolveItem(c *gin.Context) {
	var req evolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
			return
		}
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = lifecycle.TriggerManual
	}

	res, err := h.lifecycle.EvolveItem(c.Request.Context(), c.Param("id"), trigger)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMintResponse(res.Item, res.Remote, res.DualStorageStatus))
}

func (h *Handlers) getAvailability(c *gin.Context) {
	category := c.Param("category")
	if !slices.Contains(models.Categories, category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": "unknown category " + category})
		return
	}

	status, err := h.admission.Status(c.Request.Context(), c.Param("creator"), category)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) joinWaitlist(c *gin.Context) {
	var req waitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
		return
	}

	joined, err := h.admission.JoinWaitlist(c.Request.Context(), req.Creator, req.Category, req.Requester)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if joined {
		metrics.WaitlistJoinsTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"combination": models.CombinationKey(req.Creator, req.Category),
		"joined":      joined,
	})
}

func (h *Handlers) saveCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
		return
	}

	err := h.credentials.Save(c.Request.Context(), req.Owner, req.Platform, req.ExternalUserID, req.Handle,
		models.TokenPair{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "saved"})
}

func (h *Handlers) health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.lifecycle.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "detail": err.Error()})
		return
	}

	reply := gin.H{"status": "ok"}
	ledgerHealth, err := h.lifecycle.LedgerHealth(ctx)
	switch {
	case err != nil:
		reply["ledger"] = gin.H{"status": "unreachable"}
	case ledgerHealth != nil:
		reply["ledger"] = ledgerHealth
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handlers) events(c *gin.Context) {
	h.hub.serve(c.Writer, c.Request)
}

// adminToken exchanges the shared admin secret for a short-lived JWT.
func (h *Handlers) adminToken(c *gin.Context) {
	var req adminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": err.Error()})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), h.adminSecret) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": "wrong admin secret"})
		return
	}

	token, err := auth.GenerateToken(req.Operator, h.adminSecret, h.tokenValidity)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "admin token minted", "operator", req.Operator)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int64(h.tokenValidity.Seconds()),
	})
}

func (h *Handlers) runRetrySweep(c *gin.Context) {
	report, err := h.lifecycle.RetrySweep(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "retry sweep requested", "operator", c.GetString(operatorKey))
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) runDiffSweep(c *gin.Context) {
	report, err := h.lifecycle.DiffSweep(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "diff sweep requested", "operator", c.GetString(operatorKey))
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) runEvolveDue(c *gin.Context) {
	report, err := h.lifecycle.EvolveDueItems(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) listQuotas(c *gin.Context) {
	counters, err := h.admission.ListCounters(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}

	type quotaResponse struct {
		Combination string `json:"combination"`
		Minted      int64  `json:"minted"`
		Limit       int64  `json:"limit"`
	}
	out := make([]quotaResponse, 0, len(counters))
	for _, q := range counters {
		out = append(out, quotaResponse{Combination: q.Combination, Minted: q.MintedCount, Limit: q.TotalLimit})
	}
	c.JSON(http.StatusOK, gin.H{"quotas": out})
}

func (h *Handlers) reseedQuotas(c *gin.Context) {
	if h.quotaSeedPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "detail": "no quota seed file configured"})
		return
	}
	if err := h.admission.SeedFromFile(c.Request.Context(), h.quotaSeedPath); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "seeded"})
}
