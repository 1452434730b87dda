package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/picturebook/internal/api"
	"github.com/jackzampolin/picturebook/internal/broker"
	"github.com/jackzampolin/picturebook/internal/config"
	"github.com/jackzampolin/picturebook/internal/fetch"
	"github.com/jackzampolin/picturebook/internal/home"
	"github.com/jackzampolin/picturebook/internal/illustrate"
	"github.com/jackzampolin/picturebook/internal/jobs"
	"github.com/jackzampolin/picturebook/internal/pipeline"
	"github.com/jackzampolin/picturebook/internal/providers"
	"github.com/jackzampolin/picturebook/internal/server/endpoints"
	"github.com/jackzampolin/picturebook/internal/store"
	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/svcctx"
)

// Server is the main Picturebook HTTP server.
// It opens the record store, blob store and task queue on start, runs the
// task workers alongside the HTTP listener, and closes everything on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// Set during Start
	scheduler *jobs.Scheduler
	pipeline  *pipeline.Pipeline
	broker    *broker.Conn
	closers   []func() error

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the picturebook home directory; fs blobs default to {home}/blobs
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = h
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Synchronous illustration requests poll the image provider for minutes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// config returns the current configuration, or defaults when the server was
// built without a config manager.
func (s *Server) config() *config.Config {
	if s.configMgr == nil {
		return config.DefaultConfig()
	}
	return s.configMgr.Get()
}

// Start opens storage and the task queue, then serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	if err := s.init(ctx); err != nil {
		s.closeBackends()
		s.setNotRunning()
		return err
	}

	// Task workers outlive the request contexts and stop on shutdown
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		s.scheduler.Run(workerCtx)
		close(workersDone)
	}()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	s.shutdown(stopWorkers, workersDone)
	return serveErr
}

// init builds the storage backends, task scheduler and pipeline from config.
func (s *Server) init(ctx context.Context) error {
	cfg := s.config()

	if usesNATS(cfg) {
		conn, err := broker.Connect(ctx, cfg.NATS.URL, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		s.broker = conn
	}

	blobs, err := s.openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	records, err := s.openRecords(cfg)
	if err != nil {
		return err
	}
	queue, err := s.openQueue(cfg)
	if err != nil {
		return err
	}

	s.scheduler = jobs.NewScheduler(jobs.SchedulerConfig{
		Queue:   queue,
		Workers: cfg.Defaults.MaxWorkers,
		Logger:  s.logger,
	})

	var photos *fetch.Fetcher
	if cfg.Story.InlinePhotos {
		photos = fetch.New(fetch.Config{Cache: true})
	}
	llmCfg, _ := cfg.GetLLMProvider(cfg.Defaults.LLMProvider)

	s.pipeline, err = pipeline.New(pipeline.Config{
		Records: records,
		Stories: story.NewGenerator(story.Config{
			Client:      s.registry.LLMFor(cfg.Defaults.LLMProvider),
			Photos:      photos,
			Model:       llmCfg.Model,
			MaxTokens:   cfg.Story.MaxTokens,
			Temperature: cfg.Story.Temperature,
			Logger:      s.logger,
		}),
		Illustrator: illustrate.NewGenerator(illustrate.Config{
			Provider:       s.registry.ImageFor(cfg.Defaults.ImageProvider),
			Blobs:          blobs,
			Fetcher:        fetch.New(fetch.Config{}),
			PlaceholderURL: cfg.Illustration.PlaceholderURL,
			PollInterval:   cfg.Illustration.PollIntervalOr(illustrate.DefaultPollInterval),
			PollTimeout:    cfg.Illustration.PollTimeoutOr(illustrate.DefaultPollTimeout),
			Width:          cfg.Illustration.Width,
			Height:         cfg.Illustration.Height,
			Contrast:       cfg.Illustration.Contrast,
			MaxConcurrency: cfg.Illustration.MaxConcurrency,
			Logger:         s.logger,
		}),
		Scheduler:     s.scheduler,
		ImagesEnabled: s.imagesEnabled,
		Logger:        s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	s.logger.Info("storage ready",
		"records", cfg.Storage.Records,
		"blobs", cfg.Storage.Blobs,
		"queue", queue.Name())

	s.services = &svcctx.Services{
		Pipeline:  s.pipeline,
		Scheduler: s.scheduler,
		Registry:  s.registry,
		Blobs:     blobs,
		Storage:   cfg.Storage.Blobs,
		Logger:    s.logger,
		Home:      s.home,
	}
	return nil
}

// imagesEnabled reports whether the configured image provider is registered.
// It is evaluated per narrative so config reloads take effect.
func (s *Server) imagesEnabled() bool {
	return s.registry.HasImage(s.config().Defaults.ImageProvider)
}

func usesNATS(cfg *config.Config) bool {
	return cfg.Queue.Backend == "nats" || cfg.Storage.Records == "nats" || cfg.Storage.Blobs == "nats"
}

func (s *Server) openBlobs(ctx context.Context, cfg *config.Config) (store.Blobs, error) {
	switch cfg.Storage.Blobs {
	case "", "fs":
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = s.home.BlobsPath()
		}
		return store.NewFSBlobs(dir, cfg.Storage.PublicBaseURL)
	case "nats":
		obj, err := s.broker.ObjectStore(cfg.Storage.Bucket)
		if err != nil {
			return nil, err
		}
		return store.NewObjectBlobs(obj, cfg.Storage.PublicBaseURL), nil
	case "gcs":
		// Blob URLs point at the bucket itself unless public_base_url is
		// changed from the local /blobs route.
		baseURL := cfg.Storage.PublicBaseURL
		if baseURL == store.DefaultBlobBaseURL {
			baseURL = ""
		}
		blobs, err := store.NewGCSBlobs(ctx, nil, cfg.Storage.Bucket, baseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, blobs.Close)
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown blob storage backend %q", cfg.Storage.Blobs)
	}
}

func (s *Server) openRecords(cfg *config.Config) (store.Records, error) {
	switch cfg.Storage.Records {
	case "", "memory":
		return store.NewMemoryRecords(), nil
	case "nats":
		kv, err := s.broker.KeyValue(cfg.Storage.RecordBucket)
		if err != nil {
			return nil, err
		}
		return store.NewKVRecords(kv), nil
	default:
		return nil, fmt.Errorf("unknown record storage backend %q", cfg.Storage.Records)
	}
}

func (s *Server) openQueue(cfg *config.Config) (jobs.Queue, error) {
	switch cfg.Queue.Backend {
	case "", "memory":
		return jobs.NewMemoryQueue(cfg.Queue.Size), nil
	case "nats":
		return jobs.NewNATSQueue(jobs.NATSQueueConfig{
			Conn:     s.broker,
			Stream:   cfg.Queue.Stream,
			Subject:  cfg.Queue.Subject,
			Consumer: cfg.Queue.Consumer,
			Logger:   s.logger,
		})
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

// shutdown stops HTTP first, then the task workers, then the backends.
func (s *Server) shutdown(stopWorkers context.CancelFunc, workersDone <-chan struct{}) {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		s.logger.Warn("task workers did not stop before shutdown timeout")
	}
	if err := s.scheduler.Close(); err != nil {
		s.logger.Error("task queue close error", "error", err)
	}

	s.closeBackends()
	s.setNotRunning()
	s.logger.Info("server stopped")
}

func (s *Server) closeBackends() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Error("storage close error", "error", err)
		}
	}
	s.closers = nil
	if s.broker != nil {
		s.broker.Close()
		s.broker = nil
	}
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Pipeline returns the narrative pipeline.
// Returns nil if the server hasn't started yet.
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Scheduler returns the task scheduler.
// Returns nil if the server hasn't started yet.
func (s *Server) Scheduler() *jobs.Scheduler {
	return s.scheduler
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the pipeline or scheduler aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pipeline == nil || s.scheduler == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
