package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arbiter/internal/ownership"
	"arbiter/internal/repository"
)

type OwnershipHandler struct {
	Store *ownership.Store
	Repo  repository.Repository
}

func (h *OwnershipHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/ownership")
	group.GET("", h.list)
	group.GET("/:symbol", h.get)
	group.DELETE("/:symbol", h.release)
}

func (h *OwnershipHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListOwnerships(c.Request.Context(), repository.ListOwnershipsParams{
		Symbol:     queryString(c, "symbol"),
		StrategyID: queryUint64(c, "strategy_id"),
		Kind:       queryString(c, "kind"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *OwnershipHandler) get(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "ownership store unavailable", nil)
		return
	}
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "symbol required", nil)
		return
	}
	item, err := h.Store.ExclusiveOwner(c.Request.Context(), symbol)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no exclusive owner", nil)
		return
	}
	Ok(c, item, nil)
}

type releaseRequest struct {
	StrategyID uint64 `json:"strategy_id"`
}

func (h *OwnershipHandler) release(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "ownership store unavailable", nil)
		return
	}
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "symbol required", nil)
		return
	}
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StrategyID == 0 {
		Error(c, http.StatusBadRequest, "strategy_id required", nil)
		return
	}
	err := h.Store.Release(c.Request.Context(), symbol, req.StrategyID)
	if errors.Is(err, ownership.ErrNotOwner) {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"symbol": symbol, "released": true}, nil)
}
