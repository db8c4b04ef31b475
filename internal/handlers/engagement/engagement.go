package handlers_engagement

import (
	"errors"
	"net/http"
	"strings"

	"trackapi/internal/clmiddleware"
	"trackapi/internal/models/clengagement"
	"trackapi/internal/models/clrequest"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type EngagementHandler struct {
	service *clengagement.Service
}

func NewEngagementHandler(service *clengagement.Service) *EngagementHandler {
	return &EngagementHandler{
		service: service,
	}
}

// PaymentClick compte un clic sur le bouton de paiement
func (eh *EngagementHandler) PaymentClick(c *gin.Context) {
	fields, err := clrequest.Read(c.Request.Body)
	if clrequest.IsTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	req := clrequest.ExtractClick(fields)

	clicks, err := eh.service.RecordClick(c.Request.Context(), clengagement.Click{
		OrderID:   req.OrderID,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Address:   req.Address,
		IP:        clmiddleware.ClientIP(c),
		UserAgent: clrequest.UserAgent(c.Request.UserAgent()),
		Meta:      req.Meta,
	})
	if errors.Is(err, clengagement.ErrOrderIDRequired) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		serverError(c, err, "payment click upsert failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "clicks": clicks})
}

// Stats retourne les totaux et la répartition par jour sur la fenêtre demandée
func (eh *EngagementHandler) Stats(c *gin.Context) {
	stats, err := eh.service.Stats(c.Request.Context(), clengagement.ClampWindow(c.Query("days")))
	if err != nil {
		serverError(c, err, "payment click stats failed")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (eh *EngagementHandler) List(c *gin.Context) {
	rows, err := eh.service.List(c.Request.Context(), clengagement.ClampLimit(c.Query("limit")))
	if err != nil {
		serverError(c, err, "payment click list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(rows),
		"rows":  rows,
	})
}

// ByOrder additionne les compteurs d'une commande, toutes sessions confondues
func (eh *EngagementHandler) ByOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("orderId"))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": clengagement.ErrOrderIDRequired.Error()})
		return
	}

	out, err := eh.service.ByOrder(c.Request.Context(), orderID)
	if err != nil {
		serverError(c, err, "payment clicks by order failed")
		return
	}
	c.JSON(http.StatusOK, out)
}

// Realtime retourne les compteurs redis du jour
func (eh *EngagementHandler) Realtime(c *gin.Context) {
	rt, err := eh.service.Realtime(c.Request.Context())
	if errors.Is(err, clengagement.ErrRealtimeUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime counters unavailable"})
		return
	}
	if err != nil {
		serverError(c, err, "realtime click counters failed")
		return
	}
	c.JSON(http.StatusOK, rt)
}

func serverError(c *gin.Context, err error, msg string) {
	log.Error().
		Err(err).
		Str("path", c.Request.URL.Path).
		Str("method", c.Request.Method).
		Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
}
