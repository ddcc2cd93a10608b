package dashboard

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketpulse/logger"
	"marketpulse/market"
	"marketpulse/models"
)

type rangeRequest struct {
	Range string `json:"range" binding:"required"`
}

type symbolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) statePayload(state models.MarketState) gin.H {
	return gin.H{
		"state":   state,
		"ranges":  s.market.Ranges(),
		"allLive": state.Provenance.AllLive(),
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.statePayload(s.market.Snapshot()))
}

func (s *Server) getSeries(c *gin.Context) {
	key, err := models.ParseSeriesKey(c.Param("key"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var r models.TimeRange
	if tag := c.Query("range"); tag != "" {
		if r, err = models.ParseTimeRange(tag); err != nil {
			badRequest(c, err)
			return
		}
	}

	view, err := s.market.Series(key, r)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) putRange(c *gin.Context) {
	key, err := models.ParseSeriesKey(c.Param("key"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := models.ParseTimeRange(req.Range)
	if err != nil {
		badRequest(c, err)
		return
	}

	s.market.SetRange(key, r)
	c.JSON(http.StatusOK, gin.H{"key": key, "range": r})
}

func (s *Server) postRefresh(c *gin.Context) {
	start := time.Now()
	state := s.market.Refresh(c.Request.Context())
	s.log.WithComponent("dashboard").WithRefresh(state.RefreshID).WithFields(logger.Fields{
		"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
	}).Info("manual refresh completed")
	c.JSON(http.StatusOK, s.statePayload(state))
}

func (s *Server) postWatchlist(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, market.ErrEmptySymbol)
		return
	}

	detail, added, err := s.market.AddSymbol(req.Symbol)
	if err != nil {
		badRequest(c, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"stock": detail, "added": added})
}

func (s *Server) deleteWatchlist(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		badRequest(c, market.ErrEmptySymbol)
		return
	}
	// Removing an untracked symbol is a no-op.
	s.market.RemoveSymbol(symbol)
	c.Status(http.StatusNoContent)
}

func (s *Server) postAnalysis(c *gin.Context) {
	if s.analyst == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis is disabled"})
		return
	}

	summary, err := s.market.AnalysisContext()
	if errors.Is(err, market.ErrLoading) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": s.analyst.Analyze(c.Request.Context(), summary)})
}

func (s *Server) getMetrics(c *gin.Context) {
	snapshot := s.metricStore.filter(c.Query("component"), c.Query("series"))
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"series":    m.Series,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) getLogs(c *gin.Context) {
	level := logrus.TraceLevel
	if tag := c.Query("level"); tag != "" {
		parsed, err := logrus.ParseLevel(tag)
		if err != nil {
			badRequest(c, err)
			return
		}
		level = parsed
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.atLeast(level)})
}

func (s *Server) getResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}
