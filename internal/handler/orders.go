package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"arbiter/internal/arbiter"
	"arbiter/internal/order"
	"arbiter/internal/ownership"
	"arbiter/internal/repository"
)

type OrderHandler struct {
	Repo    repository.Repository
	Gate    *order.Gate
	Arbiter *arbiter.Arbiter
}

func (h *OrderHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/signals", h.submit)
	r.POST("/api/v1/arbitrate/dry-run", h.dryRun)
	group := r.Group("/api/v1/orders")
	group.GET("", h.list)
	group.GET("/:id", h.get)
}

// submit runs a signal through the validating gate. The response carries the
// order together with its terminal validating outcome.
func (h *OrderHandler) submit(c *gin.Context) {
	if h.Gate == nil {
		Error(c, http.StatusInternalServerError, "order gate unavailable", nil)
		return
	}
	var sig order.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	o, err := h.Gate.Submit(c.Request.Context(), sig)
	if errors.Is(err, ownership.ErrConflictRetry) {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, o, map[string]any{"state": o.State, "rejection_reason": o.RejectionReason})
}

// dryRun performs the arbitration decision without mutating anything; no
// ownership change, no audit entry, no events.
func (h *OrderHandler) dryRun(c *gin.Context) {
	if h.Arbiter == nil {
		Error(c, http.StatusInternalServerError, "arbiter unavailable", nil)
		return
	}
	var req arbiter.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := h.Arbiter.DryRun(c.Request.Context(), req)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), repository.ListOrdersParams{
		Symbol:     queryString(c, "symbol"),
		StrategyID: queryUint64(c, "strategy_id"),
		State:      queryString(c, "state"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := pathUint64(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	item, err := h.Repo.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}
