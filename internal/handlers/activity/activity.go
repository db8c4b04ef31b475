package handlers_activity

import (
	"net/http"
	"time"

	"trackapi/internal/clmiddleware"
	"trackapi/internal/models/clactivity"
	"trackapi/internal/models/clrequest"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ActivityHandler struct {
	service *clactivity.Service
	silent  bool
}

// NewActivityHandler, avec silent le POST répond 204 sans corps
func NewActivityHandler(service *clactivity.Service, silent bool) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		silent:  silent,
	}
}

// LogIP enregistre une visite, POST /log-ip
func (ah *ActivityHandler) LogIP(c *gin.Context) {
	fields, err := clrequest.Read(c.Request.Body)
	if clrequest.IsTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	req := clrequest.ExtractLog(fields, c.Request.UserAgent())

	entry, err := ah.service.Log(c.Request.Context(), clmiddleware.ClientIP(c), req)
	if err != nil {
		serverError(c, err, "activity log append failed")
		return
	}

	if ah.silent {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":        entry.ID,
		"createdAt": entry.CreatedAt.Format(time.RFC3339Nano),
	})
}

// Recent liste les dernières visites, GET /log-ip/recent et ses alias
func (ah *ActivityHandler) Recent(c *gin.Context) {
	limit := clactivity.ClampLimit(c.Query("limit"))
	before, err := clactivity.ParseCursor(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor, expected an RFC 3339 timestamp"})
		return
	}

	rows, err := ah.service.Recent(c.Request.Context(), limit, before)
	if err != nil {
		serverError(c, err, "activity log query failed")
		return
	}

	resp := gin.H{
		"count": len(rows),
		"rows":  rows,
	}
	if next := clactivity.NextCursor(rows, limit); next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func serverError(c *gin.Context, err error, msg string) {
	log.Error().
		Err(err).
		Str("path", c.Request.URL.Path).
		Str("method", c.Request.Method).
		Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
}
