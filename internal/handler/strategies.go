package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"arbiter/internal/models"
	"arbiter/internal/registry"
	"arbiter/internal/repository"
)

type StrategyHandler struct {
	Registry *registry.Registry
	Repo     repository.Repository
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/strategies")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:name", h.get)
	group.POST("/:name/activate", h.setActive(true))
	group.POST("/:name/deactivate", h.setActive(false))
	group.PUT("/:name/priority", h.updatePriority)
	group.GET("/:name/priority-history", h.priorityHistory)
}

func (h *StrategyHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	items, err := h.Repo.ListStrategies(c.Request.Context(), repository.ListStrategiesParams{
		ActiveOnly: activeOnly,
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type createStrategyRequest struct {
	Name            string         `json:"name"`
	DisplayName     string         `json:"display_name"`
	PersonaCategory string         `json:"persona_category"`
	Priority        int            `json:"priority"`
	Active          bool           `json:"active"`
	Params          map[string]any `json:"params"`
}

func (h *StrategyHandler) create(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item := &models.Strategy{
		Name:            req.Name,
		DisplayName:     req.DisplayName,
		PersonaCategory: req.PersonaCategory,
		Priority:        req.Priority,
		Active:          req.Active,
	}
	if req.Params != nil {
		raw, err := json.Marshal(req.Params)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		item.Params = datatypes.JSON(raw)
	}
	if err := h.Registry.Create(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *StrategyHandler) get(c *gin.Context) {
	item, ok := h.byName(c)
	if !ok {
		return
	}
	Ok(c, item, nil)
}

func (h *StrategyHandler) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := h.byName(c)
		if !ok {
			return
		}
		if err := h.Registry.SetActive(c.Request.Context(), item.ID, active); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		item.Active = active
		Ok(c, item, nil)
	}
}

type updatePriorityRequest struct {
	Priority int `json:"priority"`
}

func (h *StrategyHandler) updatePriority(c *gin.Context) {
	item, ok := h.byName(c)
	if !ok {
		return
	}
	var req updatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Registry.UpdatePriority(c.Request.Context(), item.ID, req.Priority); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item.Priority = req.Priority
	Ok(c, item, nil)
}

func (h *StrategyHandler) priorityHistory(c *gin.Context) {
	item, ok := h.byName(c)
	if !ok {
		return
	}
	history, err := h.Registry.PriorityHistory(c.Request.Context(), item.ID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, history, nil)
}

func (h *StrategyHandler) byName(c *gin.Context) (*models.Strategy, bool) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return nil, false
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return nil, false
	}
	item, err := h.Registry.GetByName(c.Request.Context(), name)
	if errors.Is(err, registry.ErrStrategyNotFound) {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return nil, false
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return nil, false
	}
	return item, true
}
