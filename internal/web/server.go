// Package web serves the search dashboard and its JSON API with gin.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/search"
	"github.com/mwiater/semsearch/internal/vectorstore"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the dashboard. engine is nil when initialization failed, in
// which case every page shows initErr.
type Server struct {
	cfg     appconfig.Config
	engine  *search.Engine
	initErr error
	router  *gin.Engine
}

// New builds the router. Pass a nil engine together with the error that
// prevented its construction.
func New(cfg appconfig.Config, engine *search.Engine, initErr error) (*Server, error) {
	if engine == nil && initErr == nil {
		initErr = errors.New("search engine not initialized")
	}
	tmpl, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard templates: %w", err)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = cfg.MaxUploadBytes()

	s := &Server{cfg: cfg, engine: engine, initErr: initErr, router: router}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.dashboard)
	s.router.POST("/search", s.searchForm)
	s.router.POST("/upload/text", s.uploadText)
	s.router.POST("/upload/file", s.limitBody(), s.uploadFile)
	s.router.POST("/index/clear", s.clearIndex)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.apiHealth)
		api.GET("/info", s.apiInfo)
		api.POST("/search", s.apiSearch)
		api.POST("/documents", s.apiAddDocument)
		api.DELETE("/index", s.apiDeleteIndex)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogEvent("[WEB] Dashboard listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.LogEvent("[WEB] Shutting down dashboard")
	return server.Shutdown(shutdownCtx)
}

func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.cfg.MaxUploadBytes()
	return func(c *gin.Context) {
		// Multipart framing adds a little on top of the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogEvent("[WEB] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrNotInitialized), errors.Is(err, vectorstore.ErrIndexNotFound):
		return http.StatusConflict
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
