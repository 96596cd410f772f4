package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/ericogr/soil-moisture-monitor/pkg/monitor"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Page       PageOptions
	Estimator  moisture.Estimator
	StaleAfter time.Duration
}

// Server serves the status page and its JSON/websocket companions from the
// monitor state.
type Server struct {
	state  *monitor.State
	opts   Options
	hub    *Hub
	router *gin.Engine
	now    func() time.Time
}

func NewServer(state *monitor.State, opts Options) *Server {
	if opts.Page.Language == "" {
		opts.Page.Language = "en"
	}
	s := &Server{state: state, opts: opts, now: time.Now}
	s.hub = NewHub(s.report)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.GET("/", s.handleRoot)
	router.GET("/api/reading", s.handleReading)
	router.GET("/healthz", s.handleHealth)
	router.GET("/ws", s.hub.handle)
	s.router = router
	return s
}

// Hub returns the websocket hub so the sampling loop can publish to it.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler { return s.router }

// report derives label and percentage from the mean of the sample read
// under a single lock.
func (s *Server) report() moisture.Report {
	sample, _ := s.state.Latest()
	return s.opts.Estimator.Report(sample, s.opts.Page.Language)
}

func (s *Server) handleRoot(c *gin.Context) {
	body, err := RenderPage(s.opts.Page, s.report())
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

func (s *Server) handleReading(c *gin.Context) {
	c.JSON(http.StatusOK, s.report())
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.state.Health(s.now(), s.opts.StaleAfter); err != nil {
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	c.String(http.StatusOK, "ok")
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
