package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"arbiter/internal/arbiter"
	"arbiter/internal/repository"
)

type ConflictHandler struct {
	Repo    repository.Repository
	Arbiter *arbiter.Arbiter
}

func (h *ConflictHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/conflicts")
	group.GET("", h.list)
	group.GET("/:id/replay", h.replay)
}

func (h *ConflictHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListConflictLogsParams{
		Symbol:     queryString(c, "symbol"),
		StrategyID: queryUint64(c, "strategy_id"),
		Resolution: queryString(c, "resolution"),
		Since:      queryTime(c, "since"),
		Until:      queryTime(c, "until"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	}
	items, err := h.Repo.ListConflictLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	count, err := h.Repo.CountConflictLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": count})
}

func (h *ConflictHandler) replay(c *gin.Context) {
	if h.Arbiter == nil {
		Error(c, http.StatusInternalServerError, "arbiter unavailable", nil)
		return
	}
	id, ok := pathUint64(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	replay, err := h.Arbiter.ReplayEntry(c.Request.Context(), id)
	if errors.Is(err, arbiter.ErrEntryNotFound) {
		Error(c, http.StatusNotFound, "entry not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, replay, nil)
}
