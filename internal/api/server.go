// Package api exposes the scheduler operations over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/soundcheck/internal/ledger"
	"github.com/zulandar/soundcheck/internal/reaper"
	"github.com/zulandar/soundcheck/internal/review"
	"github.com/zulandar/soundcheck/internal/stats"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB         *gorm.DB
	Port       int
	Out        io.Writer
	JWTSecret  string
	CronSecret string
	Review     review.Opts
	Ledger     ledger.Opts
	Reap       reaper.Opts
	Stats      *stats.Reader
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("api: jwt secret is required")
	}
	if opts.Stats == nil {
		opts.Stats = &stats.Reader{DB: opts.DB, Cache: stats.NewMemoryCache(nil)}
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	registerRoutes(router, &handlers{opts: opts})
	return router, nil
}
