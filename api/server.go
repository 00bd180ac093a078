// Package api is the HTTP surface over the trading service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/oms/notify"
	"github.com/rustyeddy/oms/trading"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// JWTSecret enables HS256 bearer tokens. When empty the owner is
	// taken from the X-User-ID header.
	JWTSecret     string
	RatePerSecond float64 // per owner, zero disables limiting
	Burst         int
}

type Server struct {
	svc     *trading.Service
	hub     *notify.Hub
	opts    Options
	limits  *limiters
	log     logrus.FieldLogger
	handler *gin.Engine
}

func NewServer(svc *trading.Service, hub *notify.Hub, opts Options, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		svc:    svc,
		hub:    hub,
		opts:   opts,
		limits: newLimiters(opts.RatePerSecond, opts.Burst),
		log:    log.WithField("component", "api"),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "trading"})
	})

	v1 := r.Group("/api/v1/trading", s.owner(), s.rateLimit())
	v1.POST("/orders", s.submitOrder)
	v1.GET("/orders", s.listOrders)
	v1.GET("/orders/:id", s.getOrder)
	v1.PUT("/orders/:id/cancel", s.cancelOrder)
	v1.GET("/trades", s.listTrades)
	v1.GET("/positions", s.listPositions)
	v1.GET("/positions/:symbol", s.getPosition)
	v1.GET("/stats", s.stats)
	if s.hub != nil {
		v1.GET("/stream", s.stream)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if owner, ok := c.Get(ownerKey); ok {
			entry = entry.WithField("owner", owner)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Debug("request")
	}
}
