// Package cmd provides the CLI commands for Sentinel Gate.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cache"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/policyseed"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/rediscache"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/sqlstore"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/webhook"
	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/audit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/auth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/pii"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/risk"
	"github.com/Sentinel-Gate/Sentinelgate/internal/observability"
	"github.com/Sentinel-Gate/Sentinelgate/internal/service"

	gatewayhttp "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/http"
)

var devMode bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway HTTP server",
	Long: `Start boots every Sentinel Gate component -- auth, rate limiting, the
policy store, the decision engine, the approval coordinator, the audit
writer, and the HTTP transport -- and serves until interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "enable permissive development defaults (seeded dev identity/key)")
	rootCmd.AddCommand(startCmd)
}

// gracefulSignals is the fixed set of signals that trigger an orderly
// shutdown: SIGINT for an interactive Ctrl-C, SIGTERM for the signal an
// orchestrator (systemd, Kubernetes) sends before a hard kill.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	tracer, shutdownTracing, err := observability.Setup(ctx, os.Stdout, Version)
	if err != nil {
		return fmt.Errorf("observability setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
	}()

	mode, err := breaker.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("invalid MODE: %w", err)
	}

	// The shared counter/cache store selects both the rate limiter and the
	// cross-instance pub/sub bus backing mode broadcasts and policy-store
	// change notifications. Empty COUNTER_STORE_URL keeps everything local,
	// the correct choice for a single-instance deployment.
	var limiter ratelimit.RateLimiter
	var bus cache.Bus
	if cfg.CounterStoreURL != "" {
		redisClient, err := rediscache.NewClient(cfg.CounterStoreURL)
		if err != nil {
			return fmt.Errorf("connect counter store: %w", err)
		}
		limiter = rediscache.NewRateLimiter(redisClient, logger)
		bus = rediscache.NewBus(redisClient, logger)
		logger.Info("counter store configured", "backend", "redis")
	} else {
		limiter = memory.NewRateLimiter()
		bus = cache.NewLocalBus()
		logger.Info("counter store not configured; using in-memory rate limiter and local bus")
	}

	modePublisher := rediscache.NewModePublisher(bus, logger)
	gate := breaker.NewGate(mode, modePublisher)
	go rediscache.RunModeSubscriber(ctx, bus, gate, logger)

	// AUDIT_STORE_URL selects the durable relational backend for policy
	// rules, approval records, and the audit trail together: spec.md §6
	// names one store holding all three tables, not three independently
	// selected adapters.
	var policyStore policy.Store
	var approvalStore approval.Store
	var auditStore audit.Store
	closeDB := func() error { return nil }

	if cfg.AuditStoreURL != "" {
		dsn := strings.TrimPrefix(cfg.AuditStoreURL, "sqlite://")
		db, err := sqlstore.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open durable store: %w", err)
		}
		closeDB = db.Close

		sqlPolicyStore, err := sqlstore.NewPolicyStore(ctx, db, bus)
		if err != nil {
			return fmt.Errorf("init policy store: %w", err)
		}
		go sqlPolicyStore.RunRefresher(ctx, 5*time.Second)
		policyStore = sqlPolicyStore

		approvalStore = sqlstore.NewApprovalStore(db)
		auditStore = sqlstore.NewAuditStore(db, logger)
		logger.Info("durable store configured", "backend", "sqlite", "dsn", dsn)
	} else {
		policyStore = memory.NewPolicyStore()
		approvalStore = memory.NewApprovalStore()
		auditStore = memory.NewAuditStore()
		logger.Info("durable store not configured; using in-memory adapters")
	}

	authStore := memory.NewAuthStore()
	seedAuth(authStore, cfg)
	authSvc := auth.NewAPIKeyService(authStore)

	if cfg.PolicySeedPath != "" {
		loader := policyseed.NewLoader(cfg.PolicySeedPath, policyStore, logger)
		if err := loader.LoadOnce(ctx); err != nil {
			logger.Warn("initial policy seed load failed", "path", cfg.PolicySeedPath, "error", err)
		}
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("policy seed watcher exited", "error", err)
			}
		}()
	}

	sanitizer := pii.New()
	evaluator := risk.NewEvaluator()

	notifier := webhook.NewNotifier(cfg.ApprovalWebhookURL, callbackBase(cfg.Server.HTTPAddr), logger)
	coordinator := approval.NewCoordinator(approvalStore, notifier, cfg.ApprovalExpiry(), logger)
	go coordinator.RunSweeper(ctx, time.Minute)

	auditSvc := service.NewAuditService(auditStore, logger)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	gatewaySvc := service.NewGatewayService(
		authSvc, limiter, policyStore, sanitizer, evaluator, gate, coordinator, auditSvc, logger,
		service.WithTracer(tracer),
	)
	policyAdminSvc := service.NewPolicyAdminService(policyStore, logger)

	healthChecker := gatewayhttp.NewHealthChecker(limiter, policyStore, coordinator, auditSvc, Version)

	handler := gatewayhttp.NewGatewayHandler(gatewaySvc, policyAdminSvc, gate, coordinator, auditStore, policyStore, logger)
	gatewayhttp.SetAuthService(authSvc)

	transport := gatewayhttp.NewHTTPTransport(handler,
		gatewayhttp.WithAddr(cfg.Server.HTTPAddr),
		gatewayhttp.WithLogger(logger),
		gatewayhttp.WithHealthChecker(healthChecker),
	)

	logger.Info("sentinel-gate starting", "addr", cfg.Server.HTTPAddr, "mode", mode.String(), "dev_mode", cfg.DevMode)

	err = transport.Start(ctx)

	if closeErr := closeDB(); closeErr != nil {
		logger.Warn("error closing durable store", "error", closeErr)
	}
	if err != nil {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

// seedAuth loads the bootstrap identities/API keys from configuration into
// the in-memory auth store. The durable store handles policy/approval/audit
// state, but bootstrap credentials stay config-driven (spec.md §6 has no
// identity/key env-var surface -- only the array form this loop consumes).
func seedAuth(store *memory.AuthStore, cfg *config.GatewayConfig) {
	for _, ic := range cfg.Auth.Identities {
		roles := make([]auth.Role, 0, len(ic.Roles))
		for _, r := range ic.Roles {
			roles = append(roles, auth.Role(r))
		}
		store.AddIdentity(&auth.Identity{
			ID:      ic.ID,
			Name:    ic.Name,
			Roles:   roles,
			Enabled: ic.Enabled,
			Scopes:  ic.Scopes,
		})
	}
	for _, kc := range cfg.Auth.APIKeys {
		store.AddKey(&auth.APIKey{Key: kc.KeyHash, IdentityID: kc.IdentityID})
	}
}

// callbackBase derives the externally reachable base URL embedded in
// webhook payloads from the listen address. Operators behind a reverse
// proxy or load balancer should prefer a dedicated env var in a future
// revision; spec.md §6 does not name one, so the listen address is the
// best available default.
func callbackBase(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
