package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"alert_engine/internal/models"
	registrysvc "alert_engine/internal/modules/registry/service"
	"alert_engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	headerSubscriberID   = "X-Subscriber-Id"
	headerSubscriberType = "X-Subscriber-Type"
)

// TriggerCounter отдаёт общее число записанных триггеров для /stats.
type TriggerCounter interface {
	Count(ctx context.Context) (int64, error)
}

type RegistryHandler struct {
	Registry *registrysvc.Registry
	Triggers TriggerCounter
}

func (h *RegistryHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/conditions", h.registerCondition)
	group.GET("/conditions/:id/status", h.conditionStatus)
	group.POST("/conditions/:id/subscriptions", h.subscribe)
	group.DELETE("/subscriptions/:id", h.unsubscribe)
	group.GET("/user/subscriptions", h.userSubscriptions)
	group.GET("/stats", h.stats)
}

// identity — подписчик из заголовков; аутентификация живёт на шлюзе
// перед движком, тут только идентификация.
func identity(c *gin.Context) (models.SubscriberType, string, bool) {
	id := c.GetHeader(headerSubscriberID)
	typ := models.SubscriberType(c.GetHeader(headerSubscriberType))
	if id == "" || (typ != models.SubscriberBot && typ != models.SubscriberAlert) {
		return "", "", false
	}
	return typ, id, true
}

func (h *RegistryHandler) registerCondition(c *gin.Context) {
	var raw registrysvc.RawCondition
	if err := c.ShouldBindJSON(&raw); err != nil {
		Error(c, http.StatusBadRequest, "malformed body: "+err.Error(), nil)
		return
	}
	cond, created, err := h.Registry.Register(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, registrysvc.ErrValidation) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		logger.Error("api: register condition: %v", err)
		Error(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	status := "existing"
	if created {
		status = "registered"
	}
	Ok(c, gin.H{"condition_id": cond.ConditionID, "status": status}, nil)
}

type subscribeRequest struct {
	ActionPayload    json.RawMessage `json:"action_payload"`
	Priority         int             `json:"priority"`
	Logic            string          `json:"logic"`
	ValidityDuration int             `json:"validity_duration"`
	ValidityUnit     string          `json:"validity_unit"`
	FireMode         string          `json:"fire_mode"`
}

func (h *RegistryHandler) subscribe(c *gin.Context) {
	typ, id, ok := identity(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "subscriber identity required", nil)
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "malformed body: "+err.Error(), nil)
		return
	}

	subID, err := h.Registry.Subscribe(c.Request.Context(), c.Param("id"), registrysvc.SubscribeParams{
		SubscriberType:   typ,
		SubscriberID:     id,
		ActionPayload:    req.ActionPayload,
		Priority:         req.Priority,
		Logic:            models.StepLogic(req.Logic),
		ValidityDuration: req.ValidityDuration,
		ValidityUnit:     models.ValidityUnit(req.ValidityUnit),
		FireMode:         models.FireMode(req.FireMode),
	})
	if err != nil {
		switch {
		case errors.Is(err, registrysvc.ErrNotFound):
			Error(c, http.StatusNotFound, "condition not found", nil)
		case errors.Is(err, registrysvc.ErrDuplicateSubscription):
			Error(c, http.StatusConflict, "active subscription already exists", nil)
		default:
			logger.Error("api: subscribe: %v", err)
			Error(c, http.StatusInternalServerError, "internal error", nil)
		}
		return
	}
	Ok(c, gin.H{"subscription_id": subID}, nil)
}

func (h *RegistryHandler) unsubscribe(c *gin.Context) {
	typ, id, ok := identity(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "subscriber identity required", nil)
		return
	}
	err := h.Registry.Unsubscribe(c.Request.Context(), c.Param("id"), typ, id)
	if err != nil {
		switch {
		case errors.Is(err, registrysvc.ErrNotFound):
			Error(c, http.StatusNotFound, "subscription not found", nil)
		case errors.Is(err, registrysvc.ErrForbidden):
			Error(c, http.StatusForbidden, "not the owner of this subscription", nil)
		default:
			logger.Error("api: unsubscribe: %v", err)
			Error(c, http.StatusInternalServerError, "internal error", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RegistryHandler) conditionStatus(c *gin.Context) {
	status, err := h.Registry.ConditionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, registrysvc.ErrNotFound) {
			Error(c, http.StatusNotFound, "condition not found", nil)
			return
		}
		logger.Error("api: condition status: %v", err)
		Error(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	Ok(c, status, nil)
}

func (h *RegistryHandler) userSubscriptions(c *gin.Context) {
	typ, id, ok := identity(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "subscriber identity required", nil)
		return
	}
	subs, err := h.Registry.UserSubscriptions(c.Request.Context(), typ, id)
	if err != nil {
		logger.Error("api: user subscriptions: %v", err)
		Error(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	out := make([]gin.H, 0, len(subs))
	for _, s := range subs {
		out = append(out, gin.H{
			"subscription_id":   s.Subscription.SubscriptionID,
			"condition_id":      s.Subscription.ConditionID,
			"symbol":            s.Condition.Symbol,
			"timeframe":         s.Condition.Timeframe,
			"kind":              s.Condition.Kind,
			"priority":          s.Subscription.Priority,
			"logic":             s.Subscription.Logic,
			"validity_duration": s.Subscription.ValidityDuration,
			"validity_unit":     s.Subscription.ValidityUnit,
			"fire_mode":         s.Subscription.FireMode,
			"active":            s.Subscription.Active,
		})
	}
	Ok(c, out, map[string]any{"total": len(out)})
}

func (h *RegistryHandler) stats(c *gin.Context) {
	st, err := h.Registry.Stats(c.Request.Context())
	if err != nil {
		logger.Error("api: stats: %v", err)
		Error(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	nt, err := h.Triggers.Count(c.Request.Context())
	if err != nil {
		logger.Error("api: stats: %v", err)
		Error(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	Ok(c, gin.H{
		"total_conditions":              st.TotalConditions,
		"total_subscriptions":           st.TotalSubscriptions,
		"avg_subscribers_per_condition": st.AvgSubscribersPerCondition,
		"total_triggers":                nt,
	}, nil)
}
