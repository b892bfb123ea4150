package monitoring

import (
	"context"
	_ "embed"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed dashboard.html
var dashboardHTML []byte

// DashboardServer exposes the monitoring API and the static dashboard page.
type DashboardServer struct {
	collector *Collector
	logger    *zap.Logger
	router    *gin.Engine
	srv       *http.Server
}

// NewDashboardServer wires the HTTP surface over a collector.
func NewDashboardServer(collector *Collector, logger *zap.Logger) *DashboardServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))
	// curl and file:// clients send no Origin header, which the cors
	// middleware requires before writing anything; pin the header for them.
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Next()
	})
	router.HandleMethodNotAllowed = true

	s := &DashboardServer{
		collector: collector,
		logger:    logger,
		router:    router,
	}
	s.registerRoutes()
	return s
}

func (s *DashboardServer) registerRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/metrics", s.getMetrics)
		api.GET("/anomalies", s.getAnomalies)
		api.GET("/distribution", s.getDistribution)
		api.GET("/health", s.getHealth)
	}

	// Prometheus exposition alongside the JSON API.
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", dashboardHTML)
	})

	s.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (s *DashboardServer) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}

func (s *DashboardServer) getAnomalies(c *gin.Context) {
	anomalies := s.collector.RecentAnomalies()
	if anomalies == nil {
		anomalies = []AnomalySummary{}
	}
	c.JSON(http.StatusOK, anomalies)
}

func (s *DashboardServer) getDistribution(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Distribution())
}

func (s *DashboardServer) getHealth(c *gin.Context) {
	healthy := s.collector.Healthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":         healthy,
		"timestamp":       time.Now().Format(time.RFC3339),
		"processing_rate": s.collector.ProcessingRate(),
		"uptime_check":    "OK",
	})
}

// Router returns the gin engine for tests.
func (s *DashboardServer) Router() *gin.Engine {
	return s.router
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously so startup can abort with a non-zero exit.
func (s *DashboardServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dashboard failed to bind %s", addr)
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard server started", zap.String("addr", addr))
	return nil
}

// Shutdown drains in-flight requests and closes the server.
func (s *DashboardServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
