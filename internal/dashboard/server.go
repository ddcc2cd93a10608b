// Package dashboard serves the market state API together with the
// monitoring feeds of the running process.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketpulse/config"
	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/market"
	"marketpulse/models"
)

// MarketService is the state store behind the API.
type MarketService interface {
	Snapshot() models.MarketState
	Refresh(ctx context.Context) models.MarketState
	AddSymbol(symbol string) (models.StockDetail, bool, error)
	RemoveSymbol(symbol string) bool
	SetRange(key models.SeriesKey, r models.TimeRange)
	Ranges() map[models.SeriesKey]models.TimeRange
	Series(key models.SeriesKey, r models.TimeRange) (market.SeriesView, error)
	AnalysisContext() (string, error)
}

// Analyzer turns a market summary into prose.
type Analyzer interface {
	Analyze(ctx context.Context, summary string) string
}

// Server hosts the gin router.
type Server struct {
	cfg             config.DashboardConfig
	log             *logger.Log
	market          MarketService
	analyst         Analyzer
	collectors      *metrics.Collectors
	metricStore     *metricStore
	logStore        *logStore
	metricHandler   metrics.MetricHandlerID
	httpServer      *http.Server
	resourceSampler *resourceSampler
}

// NewServer wires the API to svc and analyst. It returns nil when the
// dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log, svc MarketService, analyst Analyzer, collectors *metrics.Collectors) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if svc == nil {
		return nil, errors.New("dashboard requires a market service")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	metricStore := newMetricStore(cfg.MetricsLimit)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogLimit)
	log.AddHook(logStore)

	return &Server{
		cfg:             cfg,
		log:             log,
		market:          svc,
		analyst:         analyst,
		collectors:      collectors,
		metricStore:     metricStore,
		logStore:        logStore,
		metricHandler:   handlerID,
		resourceSampler: newResourceSampler(cfg.ResourceSampleSize, cfg.ResourceInterval, log),
	}, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("api server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	s.resourceSampler.stop()
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "loading": s.market.Snapshot().Loading})
	})
	router.GET("/metrics", gin.WrapH(s.collectors.Handler()))

	api := router.Group("/api")
	api.GET("/state", s.getState)
	api.GET("/series/:key", s.getSeries)
	api.PUT("/ranges/:key", s.putRange)
	api.POST("/refresh", s.postRefresh)
	api.POST("/watchlist", s.postWatchlist)
	api.DELETE("/watchlist/:symbol", s.deleteWatchlist)
	api.POST("/analysis", s.postAnalysis)

	api.GET("/metrics", s.getMetrics)
	api.GET("/logs", s.getLogs)
	api.GET("/resources", s.getResources)

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
