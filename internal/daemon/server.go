// Package daemon wires the gateway's components into an HTTP server.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/config"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm/configbuilder"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/observability"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/rpc"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// Server hosts the gateway endpoints plus health and metrics.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	handler *rpc.Handler
	ws      *workspace.Workspace
	metrics *observability.Metrics
}

// NewServer constructs the full pipeline from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	models, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build model registry: %w", err)
	}

	root := cfg.Workspace.Root
	if root == "" {
		root = "."
	}
	ws, err := workspace.New(root, workspace.Options{
		AllowWrite:       cfg.Workspace.AllowWrite,
		MaxFileBytes:     cfg.Workspace.MaxFileBytes,
		SearchMaxResults: cfg.Workspace.SearchMaxResults,
		SearchCacheTTL:   time.Duration(cfg.Workspace.SearchCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	metrics := observability.NewMetrics()
	dispatcher := &fileops.Dispatcher{WS: ws, Metrics: metrics}
	toolReg := tools.NewRegistry(dispatcher)
	norm := &gateway.Normalizer{Models: models, Tools: toolReg}

	pipeline := &gateway.Pipeline{
		Normalizer: norm,
		Dispatcher: dispatcher,
		Context:    &gateway.ContextBuilder{WS: ws, Dispatcher: dispatcher},
		Models:     models,
		Tools:      toolReg,
		Suggestions: &gateway.SuggestionEngine{
			Normalizer: norm,
			MaxActions: cfg.Suggestions.MaxActions,
		},
		Metrics:      metrics,
		Logger:       logger,
		MaxToolSteps: cfg.Pipeline.MaxToolSteps,
	}

	handler := &rpc.Handler{
		Pipeline:       pipeline,
		Models:         models,
		Tools:          toolReg,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		RequestTimeout: time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, handler: handler, ws: ws, metrics: metrics}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	s.handler.Register(mux)

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting copilot gateway",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("workspace", s.ws.Root()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down copilot gateway")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.ws.Close()
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
