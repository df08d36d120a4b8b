package devsim

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// DefaultAddr binds the simulator to the loopback on an unprivileged port;
// the real device serves on 10.11.99.1:80.
const DefaultAddr = "127.0.0.1:9090"

// faults are runtime-tunable failure knobs for exercising client error
// paths. Zero values mean "behave".
type faults struct {
	mu           sync.Mutex
	latency      time.Duration
	listStatus   int
	uploadStatus int
}

// Server is the simulated device web interface.
type Server struct {
	store  *Store
	engine *gin.Engine
	faults faults
}

// Option customizes a Server.
type Option func(*Server)

// WithLatency delays every response, for probe-timeout tests.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.faults.latency = d }
}

// New builds the simulator around a store.
func New(store *Store, opts ...Option) *Server {
	s := &Server{store: store}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	httpLogger := slog.Default().WithGroup("devsim")
	r.Use(sloggin.NewWithConfig(httpLogger, sloggin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(s.injectLatency)

	// One catch-all mirrors the firmware's single listing endpoint:
	// /documents/ is the root, /documents/{id} a collection.
	r.GET("/documents/*id", s.handleListing)
	r.POST("/upload", s.handleUpload)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine.Handler()
}

// Serve runs the simulator until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("device simulator listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// FailListings makes every listing answer status until cleared with 0.
func (s *Server) FailListings(status int) {
	s.faults.mu.Lock()
	s.faults.listStatus = status
	s.faults.mu.Unlock()
}

// FailUploads makes every upload answer status until cleared with 0.
func (s *Server) FailUploads(status int) {
	s.faults.mu.Lock()
	s.faults.uploadStatus = status
	s.faults.mu.Unlock()
}

// SetLatency changes the artificial per-request delay.
func (s *Server) SetLatency(d time.Duration) {
	s.faults.mu.Lock()
	s.faults.latency = d
	s.faults.mu.Unlock()
}

func (s *Server) injectLatency(c *gin.Context) {
	s.faults.mu.Lock()
	delay := s.faults.latency
	s.faults.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			c.AbortWithStatus(http.StatusRequestTimeout)
			return
		}
	}
	c.Next()
}

func (s *Server) handleListing(c *gin.Context) {
	s.faults.mu.Lock()
	forced := s.faults.listStatus
	s.faults.mu.Unlock()
	if forced != 0 {
		c.JSON(forced, gin.H{"error": "injected failure"})
		return
	}

	id := strings.Trim(c.Param("id"), "/")

	entries, ok := s.store.List(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such collection"})
		return
	}

	// Listing a folder makes it the upload target, like the firmware.
	s.store.Visit(id)

	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleUpload(c *gin.Context) {
	s.faults.mu.Lock()
	forced := s.faults.uploadStatus
	s.faults.mu.Unlock()
	if forced != 0 {
		c.JSON(forced, gin.H{"error": "injected failure"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	entry, err := s.store.PlaceUpload(file.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("simulated upload stored",
		"name", entry.VissibleName,
		"type", entry.FileType,
		"folder", entry.Parent,
		"size", file.Size)
	c.JSON(http.StatusCreated, gin.H{"status": "Upload successful"})
}
