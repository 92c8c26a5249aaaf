// Package dashboard serves the latest watchlist, chart data and a background
// refresh job over HTTP.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nse-backtester/internal/metrics"
	"nse-backtester/internal/store"
	"nse-backtester/internal/stream"
)

// RefreshFunc fetches fresh data and regenerates the watchlist. It reports
// progress through progress and returns the final status message.
type RefreshFunc func(ctx context.Context, progress func(string)) (string, error)

// Config configures the dashboard.
type Config struct {
	Addr       string
	ReportsDir string
	CacheDir   string
	Interval   string

	// Store, when set, serves chart bars and is the fallback signal source.
	Store store.DataStore
	// Refresh, when nil, makes POST /refresh answer 503.
	Refresh        RefreshFunc
	RefreshTimeout time.Duration

	Logger zerolog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg    Config
	engine *gin.Engine
	server *http.Server
	job    *Job
	hub    *stream.Hub
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates the server and starts its event hub. Call Close (or Run)
// to release it.
func NewServer(cfg Config) *Server {
	if cfg.Interval == "" {
		cfg.Interval = "5m"
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 5 * time.Minute
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		engine: engine,
		hub:    stream.NewHub(),
		logger: cfg.Logger.With().Str("component", "dashboard").Logger(),
		ctx:    ctx,
		cancel: cancel,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.job = NewJob(func(st JobStatus) {
		s.hub.Publish(stream.TopicRefresh, st)
	})
	s.hub.Start(ctx)

	engine.Use(s.loggerMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/signals", s.handleSignals)
	s.engine.GET("/chart/:symbol", s.handleChart)
	s.engine.POST("/refresh", s.handleRefresh)
	s.engine.GET("/refresh/status", s.handleRefreshStatus)
	s.engine.GET("/ws", s.handleWS)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Job returns the refresh job.
func (s *Server) Job() *Job {
	return s.job
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Dashboard listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close stops the hub, cancels a running refresh and waits for it to exit.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.hub.Stop()
}

// StartRefresh launches the refresh job in the background. It returns
// ErrRefreshInProgress if one is already running.
func (s *Server) StartRefresh() error {
	if err := s.job.Begin("Fetching latest market data..."); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RefreshTimeout)
		defer cancel()

		msg, err := s.cfg.Refresh(ctx, s.job.Progress)
		if err != nil {
			s.logger.Error().Err(err).Msg("Refresh failed")
			metrics.RefreshesTotal.WithLabelValues(string(JobError)).Inc()
		} else {
			s.logger.Info().Str("message", msg).Msg("Refresh finished")
			metrics.RefreshesTotal.WithLabelValues(string(JobDone)).Inc()
		}
		s.job.Finish(msg, err)
	}()
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleWS pushes refresh job snapshots, starting with the current one.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.hub.Subscribe(stream.TopicRefresh, c.ClientIP())
	defer s.hub.Unsubscribe(stream.TopicRefresh, events)

	// The reader only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if err := write(stream.Event{Topic: stream.TopicRefresh, Time: time.Now(), Data: s.job.Status()}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-s.ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
