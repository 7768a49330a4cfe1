package indexer

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// Handler returns the HTTP API.
//
// Endpoints:
//
//	GET  /healthz                   - liveness
//	GET  /v1/entities/:id           - component values (?components=a,b)
//	POST /v1/entities/:id           - apply component values
//	GET  /v1/entities/:id/history   - apply journal for the entity
//	POST /v1/resync                 - snapshot of entities matching a filter
//	GET  /v1/subscribe              - websocket push channel
func (x *Indexer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(x.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.GET("/entities/:id", x.handleGet)
	v1.POST("/entities/:id", x.handleApply)
	v1.GET("/entities/:id/history", x.handleHistory)
	v1.POST("/resync", x.handleResync)
	v1.GET("/subscribe", func(c *gin.Context) {
		x.hub.serve(c.Writer, c.Request)
	})
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (x *Indexer) handleGet(c *gin.Context) {
	entity := ir.EntityID(c.Param("id"))
	var names []string
	for _, n := range strings.Split(c.Query("components"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	comps, err := x.Get(c.Request.Context(), entity, names)
	if err != nil {
		x.logger.Error("read entity", "entity_id", entity, "error", err)
		c.JSON(http.StatusInternalServerError, indexclient.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, indexclient.EntitySnapshot{EntityID: entity, Components: comps})
}

func (x *Indexer) handleApply(c *gin.Context) {
	entity := ir.EntityID(c.Param("id"))
	var req indexclient.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, indexclient.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	seq, err := x.Apply(c.Request.Context(), entity, req.Components)
	switch {
	case errors.Is(err, ErrInvalidApply):
		c.JSON(http.StatusUnprocessableEntity, indexclient.ErrorResponse{Error: err.Error()})
	case err != nil:
		x.logger.Error("apply", "entity_id", entity, "error", err)
		c.JSON(http.StatusInternalServerError, indexclient.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, indexclient.ApplyResponse{Seq: seq})
	}
}

func (x *Indexer) handleHistory(c *gin.Context) {
	entity := ir.EntityID(c.Param("id"))
	hist, err := x.History(c.Request.Context(), entity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, indexclient.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity_id": entity, "applies": hist})
}

func (x *Indexer) handleResync(c *gin.Context) {
	var req indexclient.ResyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, indexclient.ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}
	chain, err := queryir.FromSpecs(req.Fragments)
	if err != nil {
		c.JSON(http.StatusBadRequest, indexclient.ErrorResponse{Error: err.Error()})
		return
	}

	snaps, err := x.Snapshot(c.Request.Context(), chain)
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, indexclient.ErrorResponse{Error: err.Error()})
	case err != nil:
		x.logger.Error("resync", "error", err)
		c.JSON(http.StatusInternalServerError, indexclient.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, indexclient.ResyncResponse{Entities: snaps})
	}
}
