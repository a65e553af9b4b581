// Package server wires the marketplace settlement core into an HTTP API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/ptzlabs/marketplace/internal/admin"
	"github.com/ptzlabs/marketplace/internal/auth"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/catalog"
	"github.com/ptzlabs/marketplace/internal/config"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/deposits"
	"github.com/ptzlabs/marketplace/internal/fees"
	"github.com/ptzlabs/marketplace/internal/giftcards"
	"github.com/ptzlabs/marketplace/internal/health"
	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/metrics"
	"github.com/ptzlabs/marketplace/internal/notify"
	"github.com/ptzlabs/marketplace/internal/orders"
	"github.com/ptzlabs/marketplace/internal/ratelimit"
	"github.com/ptzlabs/marketplace/internal/realtime"
	"github.com/ptzlabs/marketplace/internal/reconciliation"
	"github.com/ptzlabs/marketplace/internal/security"
	"github.com/ptzlabs/marketplace/internal/settings"
	"github.com/ptzlabs/marketplace/internal/settlement"
	"github.com/ptzlabs/marketplace/internal/validation"
	"github.com/ptzlabs/marketplace/internal/webhooks"
)

// Server is the top-level application container. It owns the router, the
// database handle when one is configured, and every domain service.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server
	db     *sql.DB

	users     *identity.Service
	tokens    *auth.Manager
	wallet    *ledger.Service
	listings  catalog.Listings
	orders    *orders.Service
	giftcards *giftcards.Service
	admin     *admin.Service
	deposits  *deposits.Service
	scheduler *settlement.Scheduler
	hub       *realtime.Hub
	hooks     webhooks.Store
	reconcile *reconciliation.Service
	auditTick *reconciliation.Timer
	limiter   *ratelimit.Limiter
	health    *health.Registry

	hubCancel context.CancelFunc
}

// Option customizes the server during construction.
type Option func(*Server)

// WithLogger overrides the logger built from config.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithListings overrides the catalog collaborator (tests, embedded use).
func WithListings(l catalog.Listings) Option {
	return func(s *Server) { s.listings = l }
}

// New builds a fully wired server. With DATABASE_URL set every store is
// Postgres-backed; otherwise everything runs in memory with demo data.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  logging.New(cfg.LogLevel, cfg.LogFormat),
		health:  health.NewRegistry(),
		limiter: ratelimit.New(ratelimit.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var (
		userStore  identity.Store
		tokenStore auth.Store
		ruleStore  fees.RuleStore
		cfgStore   settings.Provider
		orderStore orders.Store
		auditStore admin.AuditStore
		cardStore  giftcards.Store
		entryStore ledger.Store
		hookStore  webhooks.Store
		runner     database.Runner
	)

	if cfg.DatabaseURL != "" {
		db, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.logger.Info("using postgres storage", "dsn", maskDSN(cfg.DatabaseURL))

		userStore = identity.NewPostgresStore(db)
		tokenStore = auth.NewPostgresStore(db)
		ruleStore = fees.NewPostgresRules(db)
		cfgStore = settings.NewPostgresProvider(db)
		orderStore = orders.NewPostgresStore(db)
		auditStore = admin.NewPostgresAuditStore(db)
		cardStore = giftcards.NewPostgresStore(db)
		entryStore = ledger.NewPostgresStore(db)
		hookStore = webhooks.NewPostgresStore(db)
		runner = database.NewSQLRunner(db)
		if s.listings == nil {
			s.listings = catalog.NewPostgres(db)
		}
		s.health.Register("database", func(ctx context.Context) health.Status {
			st := health.Status{Name: "database", Healthy: true}
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				st.Healthy = false
				st.Detail = err.Error()
			}
			return st
		})
	} else {
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")

		userStore = identity.NewMemoryStore()
		tokenStore = auth.NewMemoryStore()
		ruleStore = fees.NewMemoryRules()
		cfgStore = settings.NewMemory()
		orderStore = orders.NewMemoryStore()
		auditStore = admin.NewMemoryAuditStore()
		cardStore = giftcards.NewMemoryStore()
		entryStore = ledger.NewMemoryStore()
		hookStore = webhooks.NewMemoryStore()
		runner = database.NewMemoryRunner()
		if s.listings == nil {
			mem := catalog.NewMemory()
			seedDemoListings(mem)
			s.listings = mem
		}
	}

	// Operator config backs any settings key the admin API has not set.
	cfgStore = settings.Defaults{
		Inner: cfgStore,
		Values: map[string]string{
			settings.KeyDisputeWindowHours:   fmt.Sprintf("%d", cfg.DisputeWindowHours),
			settings.KeySellerProtectionDays: fmt.Sprintf("%d", cfg.SellerProtectionDays),
			settings.KeyDefaultFeePercent:    cfg.DefaultFeePercent,
			settings.KeyLargeAmountThreshold: cfg.LargeAmountThreshold,
		},
	}

	s.users = identity.NewService(userStore)
	s.tokens = auth.NewManager(tokenStore)
	s.wallet = ledger.NewService(entryStore)
	s.giftcards = giftcards.NewService(cardStore, s.wallet, runner)
	s.hub = realtime.NewHub(s.logger)

	s.hooks = hookStore
	events := notify.NewDispatcher(notify.LogSink{}, s.hub, webhooks.NewDispatcher(hookStore))
	resolver := fees.NewResolver(ruleStore, cfg.DefaultFeePercent)
	s.orders = orders.NewService(orderStore, s.wallet, resolver, s.users, s.listings, cfgStore, runner, events)
	s.admin = admin.NewService(auditStore, s.wallet, s.orders, s.users, s.listings,
		admin.NewMemoryMessages(), s.giftcards, cfgStore, runner)
	s.deposits = deposits.NewService(s.wallet, cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	autoEvery, err := time.ParseDuration(cfg.AutoCompleteInterval)
	if err != nil {
		return nil, fmt.Errorf("parse AUTO_COMPLETE_INTERVAL: %w", err)
	}
	releaseEvery, err := time.ParseDuration(cfg.ReleaseEarningsInterval)
	if err != nil {
		return nil, fmt.Errorf("parse RELEASE_EARNINGS_INTERVAL: %w", err)
	}
	s.scheduler = settlement.New(s.orders, autoEvery, releaseEvery)

	s.reconcile = reconciliation.NewService(s.wallet)
	s.auditTick = reconciliation.NewTimer(s.reconcile, s.logger)

	if cfg.DatabaseURL == "" {
		if err := s.seedDemoUsers(context.Background(), userStore); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	s.health.Register("scheduler", func(ctx context.Context) health.Status {
		st := health.Status{Name: "scheduler", Healthy: true}
		for _, job := range s.scheduler.Jobs() {
			if job.LastError != "" {
				st.Healthy = false
				st.Detail = job.Name + ": " + job.LastError
			}
		}
		return st
	})

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_ERROR", "message": "internal server error"},
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.limiter.Middleware())
	s.router.Use(metrics.Middleware())

	// Request ID plus request-scoped logger, installed last so handlers
	// and services see both on the request context.
	s.router.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = idgen.WithPrefix("req_")
		}
		c.Header("X-Request-ID", reqID)

		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health/live" {
			return
		}
		s.logger.Info("request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/health/ready", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	api := s.router.Group("/api/v1")

	// Public surface: login and the Stripe webhook, which carries its own
	// signature check instead of a bearer token.
	auth.RegisterPublicRoutes(api, s.tokens, s.users)
	deposits.RegisterWebhook(api, s.deposits)

	authed := api.Group("")
	authed.Use(auth.Middleware(s.tokens, s.users))

	auth.RegisterRoutes(authed, s.tokens, s.users)
	ledger.RegisterRoutes(authed, s.wallet)
	orders.RegisterRoutes(authed, s.orders)
	giftcards.RegisterRoutes(authed, s.giftcards)
	deposits.RegisterRoutes(authed, s.deposits)
	webhooks.RegisterRoutes(authed, s.hooks)
	admin.RegisterRoutes(authed, s.admin, s.scheduler)

	authed.GET("/admin/reconciliation", func(c *gin.Context) {
		if _, ok := httpx.RequirePermission(c, authz.PermWalletAdjust); !ok {
			return
		}
		res, err := s.reconcile.Run(c.Request.Context())
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "checks": statuses})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the background workers and the HTTP listener, then blocks
// until the context is cancelled, a signal arrives, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go s.hub.Run(hubCtx)
	go s.auditTick.Start(hubCtx)

	s.scheduler.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr, "env", s.cfg.Env)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	}

	return s.Shutdown()
}

// Shutdown stops workers and drains in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.scheduler.Stop()
	if s.hubCancel != nil {
		s.hubCancel()
	}
	s.limiter.Stop()

	err := s.http.Shutdown(ctx)

	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	s.logger.Info("server stopped")
	return err
}

// maskDSN hides credentials in a connection string for logging.
func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}

// seedDemoUsers populates memory mode with a working cast: a super admin,
// a funded buyer, and the seller behind the demo listings. Credentials are
// fixed and logged so a fresh checkout is immediately usable.
func (s *Server) seedDemoUsers(ctx context.Context, store identity.Store) error {
	users := []struct {
		id, username, email, password string
		roles                         []authz.Role
	}{
		{"usr_0000000000000001", "root", "root@localhost", "rootpass", []authz.Role{authz.RoleSuperAdmin}},
		{"usr_0000000000000002", "demo_seller", "seller@localhost", "sellerpass", []authz.Role{authz.RoleUser, authz.RoleSeller}},
		{"usr_0000000000000003", "demo_buyer", "buyer@localhost", "buyerpass", []authz.Role{authz.RoleUser}},
	}

	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		err = store.Create(ctx, &identity.User{
			ID:           u.id,
			Username:     u.username,
			Email:        u.email,
			Roles:        u.roles,
			Status:       identity.StatusActive,
			SellerLevel:  "bronze",
			KYCStatus:    identity.KYCApproved,
			SalesVolume:  "0.00",
			PasswordHash: string(hash),
		})
		if err != nil {
			return err
		}
	}

	if _, err := s.wallet.Deposit(ctx, "usr_0000000000000003", "500.00", "dep_demo_seed", "demo seed"); err != nil {
		return err
	}

	s.logger.Info("demo users seeded",
		"admin", "root/rootpass", "seller", "demo_seller/sellerpass", "buyer", "demo_buyer/buyerpass")
	return nil
}

// seedDemoListings gives memory mode something to sell.
func seedDemoListings(m *catalog.Memory) {
	m.Put(&catalog.Listing{
		ID:       "lst_0000000000000001",
		SellerID: "usr_0000000000000002",
		GameID:   "game_elden_ring",
		PriceUSD: "25.00",
		Status:   catalog.StatusApproved,
	})
	m.Put(&catalog.Listing{
		ID:         "lst_0000000000000002",
		SellerID:   "usr_0000000000000002",
		GameID:     "game_valorant",
		PlatformID: "pc",
		PriceUSD:   "60.00",
		Status:     catalog.StatusApproved,
	})
}
