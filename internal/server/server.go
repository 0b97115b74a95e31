// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/agentbazaar/bazaar/internal/admin"
	"github.com/agentbazaar/bazaar/internal/auth"
	"github.com/agentbazaar/bazaar/internal/catalog"
	"github.com/agentbazaar/bazaar/internal/circuitbreaker"
	"github.com/agentbazaar/bazaar/internal/config"
	"github.com/agentbazaar/bazaar/internal/health"
	"github.com/agentbazaar/bazaar/internal/ledger"
	"github.com/agentbazaar/bazaar/internal/logging"
	"github.com/agentbazaar/bazaar/internal/metrics"
	"github.com/agentbazaar/bazaar/internal/ratelimit"
	"github.com/agentbazaar/bazaar/internal/realtime"
	"github.com/agentbazaar/bazaar/internal/reconciliation"
	"github.com/agentbazaar/bazaar/internal/security"
	"github.com/agentbazaar/bazaar/internal/skills"
	"github.com/agentbazaar/bazaar/internal/traces"
	"github.com/agentbazaar/bazaar/internal/validation"
	"github.com/agentbazaar/bazaar/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	wallet         wallet.WalletService
	agents         catalog.Store
	authMgr        *auth.Manager
	ledger         *ledger.Ledger
	alertStore     ledger.AlertStore
	skillSvc       *skills.Service
	skillReg       *skills.Registry
	realtimeHub    *realtime.Hub
	checks         *health.Registry
	reconciler     *reconciliation.Service
	reconcileTimer *reconciliation.Timer
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWallet sets a custom wallet (for testing)
func WithWallet(w wallet.WalletService) Option {
	return func(s *Server) {
		s.wallet = w
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set wallet/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Agent catalog with Postgres
		catalogStore := catalog.NewPostgresStore(db)
		if err := catalogStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate catalog store", "error", err)
		}
		s.agents = catalogStore

		// API keys with Postgres
		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		// Transaction ledger with Postgres
		ledgerStore := ledger.NewPostgresStore(db)
		if err := ledgerStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate ledger store", "error", err)
		}
		s.ledger = ledger.New(ledgerStore)
		s.alertStore = ledger.NewPostgresAlertStore(db)
	} else {
		s.agents = catalog.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")

		// Launch roster so the marketplace is browsable out of the box
		if err := catalog.Seed(ctx, s.agents); err != nil {
			s.logger.Warn("failed to seed catalog", "error", err)
		}

		s.authMgr = auth.NewManager(auth.NewMemoryStore())
		s.ledger = ledger.New(ledger.NewMemoryStore())
		s.alertStore = ledger.NewMemoryAlertStore()
	}

	s.ledger.WithAlerts(ledger.NewAlertChecker(s.alertStore))

	// Create wallet if not injected
	if s.wallet == nil {
		w, err := wallet.New(wallet.Config{
			RPCURL:       cfg.RPCURL,
			PrivateKey:   cfg.PrivateKey,
			ChainID:      cfg.ChainID,
			USDCContract: cfg.USDCContract,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
		s.wallet = w
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.ledger.WithEvents(&hubEventSink{s.realtimeHub})

	// Subsystem health checks
	s.checks = health.NewRegistry()
	s.checks.Register("rpc", func(ctx context.Context) health.Status {
		if _, err := s.wallet.BalanceOf(ctx, common.Address{}); err != nil {
			return health.Status{Name: "rpc", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "rpc", Healthy: true}
	})
	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	// Skill registry from configured provider credentials
	s.skillReg = s.buildSkillRegistry(ctx)
	s.skillSvc = skills.NewService(s.skillReg, s.ledger, s.logger).
		WithDirectory(s.agents).
		WithEvents(&hubEventSink{s.realtimeHub}).
		WithBreaker(circuitbreaker.New(5, 30*time.Second))

	// Ledger-vs-chain reconciliation
	s.reconciler = reconciliation.NewService(
		&ledgerVolumeAdapter{s.ledger},
		&walletBalanceAdapter{wallet: s.wallet, platform: cfg.PlatformWallet},
	)
	s.reconcileTimer = reconciliation.NewTimer(s.reconciler, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// buildSkillRegistry registers every skill whose provider credentials
// are configured. Agents whose skill is missing credentials are marked
// offline in the catalog so buyers cannot pay for a run that can never
// happen.
func (s *Server) buildSkillRegistry(ctx context.Context) *skills.Registry {
	reg := skills.NewRegistry()

	// Curator needs no external provider
	reg.Register(skills.NewCollectionCurator())

	if s.cfg.ReplicateToken != "" {
		reg.Register(skills.NewNeuralArtist(s.cfg.ReplicateToken))
		reg.Register(skills.NewNeuralArtistPro(s.cfg.ReplicateToken))
	}
	if s.cfg.OpenAIKey != "" {
		reg.Register(skills.NewNFTMetaMind(s.cfg.OpenAIKey))
	}
	if s.cfg.PinataJWT != "" {
		reg.Register(skills.NewPinataExpress(s.cfg.PinataJWT))
	}
	if s.cfg.XRPLSeed != "" {
		reg.Register(skills.NewXRPLMinter(s.cfg.XRPLNetwork, s.cfg.XRPLSeed))
	}

	for _, slug := range []string{"neural-artist", "neural-artist-pro", "nft-metamind", "pinata-express", "xrpl-minter"} {
		if _, ok := reg.Get(slug); ok {
			continue
		}
		if err := s.agents.SetStatus(ctx, slug, catalog.StatusOffline); err != nil {
			if !errors.Is(err, catalog.ErrAgentNotFound) {
				s.logger.Warn("failed to mark agent offline", "slug", slug, "error", err)
			}
			continue
		}
		s.logger.Info("skill has no provider credentials, agent offline", "slug", slug)
	}

	s.logger.Info("skill registry built", "skills", reg.Slugs())
	return reg
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// hubEventSink forwards ledger and execution events to WebSocket clients.
type hubEventSink struct {
	hub *realtime.Hub
}

func (e *hubEventSink) TransactionRecorded(tx *ledger.Transaction) {
	e.hub.BroadcastTransaction(tx)
}

func (e *hubEventSink) ExecutionFinished(agentID, transactionID string, success bool) {
	e.hub.BroadcastExecution(agentID, transactionID, success)
}

func (e *hubEventSink) AgentJoined(agentID, slug, category string) {
	e.hub.BroadcastAgentJoined(agentID, slug, category)
}

// catalogDirectory joins transactions with agent display info.
type catalogDirectory struct {
	store catalog.Store
}

func (d *catalogDirectory) AgentInfo(ctx context.Context, agentID string) (*ledger.AgentInfo, error) {
	agent, err := d.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &ledger.AgentInfo{
		ID:        agent.ID,
		Slug:      agent.Slug,
		Name:      agent.Name,
		Category:  agent.Category,
		AvatarURL: agent.AvatarURL,
	}, nil
}

// catalogLookup resolves execute requests against the catalog.
type catalogLookup struct {
	store catalog.Store
}

func (l *catalogLookup) AgentBySlug(ctx context.Context, slug string) (string, bool, error) {
	agent, err := l.store.GetAgentBySlug(ctx, slug)
	if err != nil {
		return "", false, err
	}
	return agent.ID, agent.Status == catalog.StatusOnline, nil
}

// ledgerVolumeAdapter exposes completed USDC volume for reconciliation.
type ledgerVolumeAdapter struct {
	ledger *ledger.Ledger
}

func (a *ledgerVolumeAdapter) CompletedVolume(ctx context.Context) (string, error) {
	stats, err := a.ledger.Stats(ctx)
	if err != nil {
		return "", err
	}
	return stats.TotalVolume, nil
}

// walletTransferVerifier checks submitted tx hashes against the platform wallet.
type walletTransferVerifier struct {
	wallet   wallet.PaymentVerifier
	platform string
}

func (v *walletTransferVerifier) VerifyTransfer(ctx context.Context, txHash, minAmount string) (bool, error) {
	return v.wallet.VerifyTransferTo(ctx, v.platform, minAmount, txHash)
}

// walletBalanceAdapter reads the platform wallet's on-chain USDC balance.
type walletBalanceAdapter struct {
	wallet   wallet.BalanceChecker
	platform string
}

func (a *walletBalanceAdapter) PlatformUSDCBalance(ctx context.Context) (*big.Int, error) {
	return a.wallet.BalanceOf(ctx, common.HexToAddress(a.platform))
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// PUBLIC PAGES - the storefront people actually browse
	s.router.GET("/", storefrontHandler)
	s.router.GET("/transactions/:id", transactionPageHandler)

	// WebSocket for real-time marketplace activity
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	catalogHandler := catalog.NewHandler(s.agents, s.logger).
		WithEvents(&hubEventSink{s.realtimeHub})
	ledgerHandler := ledger.NewHandler(s.ledger, s.logger).
		WithAgentDirectory(&catalogDirectory{s.agents}).
		WithAlertStore(s.alertStore)
	if s.cfg.IsProduction() {
		// In development the storefront records demo payments with
		// fabricated hashes, so the chain check only runs in production.
		ledgerHandler = ledgerHandler.WithVerifier(&walletTransferVerifier{
			wallet:   s.wallet,
			platform: s.cfg.PlatformWallet,
		})
	}
	skillsHandler := skills.NewHandler(s.skillSvc, s.logger).
		WithAgentLookup(&catalogLookup{s.agents})
	authHandler := auth.NewHandler(s.authMgr)

	// PUBLIC ROUTES (no auth required)
	// Browsing, quoting, recording payments and triggering paid runs.
	catalogHandler.RegisterRoutes(v1)
	ledgerHandler.RegisterRoutes(v1)
	skillsHandler.RegisterRoutes(v1)
	authHandler.RegisterRoutes(v1)
	v1.GET("/platform", s.platformHandler)
	v1.GET("/wallet", s.walletInfoHandler)
	v1.GET("/ws/stats", s.realtimeStatsHandler)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		catalogHandler.RegisterProtectedRoutes(protected)
		ledgerHandler.RegisterProtectedRoutes(protected)
		authHandler.RegisterProtectedRoutes(protected)
	}

	// ADMIN ROUTES (require X-Admin-Secret)
	adminHandler := admin.NewHandler(s.logger).
		WithLedger(s.ledger).
		WithReconciler(s.reconciler).
		WithAlerts(s.alertStore)

	adminGroup := v1.Group("")
	adminGroup.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		adminHandler.RegisterRoutes(adminGroup)
		ledgerHandler.RegisterAdminRoutes(adminGroup)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Agent Bazaar",
		"description": "Pay-per-execution marketplace for AI agents",
		"version":     "0.1.0",
		"network":     "Polygon",
		"currency":    "USDC",
	})
}

// platformHandler returns payment details buyers need at checkout
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":            "Agent Bazaar",
			"version":         "0.1.0",
			"platform_wallet": s.cfg.PlatformWallet,
			"network":         "Polygon",
			"chain_id":        s.cfg.ChainID,
			"usdc_contract":   s.cfg.USDCContract,
			"fee_rate":        "7%",
		},
		"skills": s.skillReg.Slugs(),
	})
}

func (s *Server) walletInfoHandler(c *gin.Context) {
	ctx := c.Request.Context()

	balance, err := s.wallet.Balance(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to get balance", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve wallet balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  s.wallet.Address(),
		"balance":  balance,
		"currency": "USDC",
		"network":  "Polygon",
		"chain_id": s.cfg.ChainID,
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing is optional; without an endpoint Init returns a no-op shutdown.
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"wallet", s.wallet.Address(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start reconciliation timer
	go s.reconcileTimer.Start(runCtx)

	// Collect DB pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop reconciliation timer
	if s.reconcileTimer != nil {
		s.reconcileTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close wallet connection
	if err := s.wallet.Close(); err != nil {
		s.logger.Error("wallet close error", "error", err)
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
