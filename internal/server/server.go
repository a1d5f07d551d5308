package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/auth/session"
	"github.com/smallbiznis/posbridge/internal/auth/token"
	authz "github.com/smallbiznis/posbridge/internal/authorization"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/internal/logsink"
	logdomain "github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/smallbiznis/posbridge/internal/observability"
	obsmiddleware "github.com/smallbiznis/posbridge/internal/observability/logger"
	obstracing "github.com/smallbiznis/posbridge/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/smallbiznis/posbridge/internal/scheduler"
	"github.com/smallbiznis/posbridge/internal/synchealth"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"github.com/smallbiznis/posbridge/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(telemetry.NewHTTPMetrics),
	fx.Provide(registerGin),
	fx.Provide(
		func(db *gorm.DB, repo transferdomain.Repository) TransferLister {
			return &transferStore{db: db, repo: repo}
		},
		func(p *token.Provider) ProfileLogin { return p },
		func(s *scheduler.Scheduler) SyncController { return s },
		func(s *synchealth.Service) HealthSource { return s },
		func(r *logsink.Reader) LogReader { return r },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// ProfileLogin performs the interactive OTP login.
type ProfileLogin interface {
	LoginWithUserProvidedOtp(ctx context.Context, profile profiledomain.Profile, code string) (string, error)
}

// SyncController is the orchestrator surface exposed to operators.
type SyncController interface {
	Start()
	Stop()
	Running() bool
	RunProfileNow(ctx context.Context, profileID string) (scheduler.PerfRecord, error)
}

type TransferLister interface {
	ListByRange(ctx context.Context, profileID string, rg transferdomain.Range) ([]transferdomain.Transfer, error)
}

type HealthSource interface {
	Snapshot(ctx context.Context, lookback time.Duration) ([]synchealth.ProfileHealth, error)
}

type LogReader interface {
	List(ctx context.Context, filter logdomain.ListFilter) ([]logdomain.LogEntry, error)
}

type transferStore struct {
	db   *gorm.DB
	repo transferdomain.Repository
}

func (t *transferStore) ListByRange(ctx context.Context, profileID string, rg transferdomain.Range) ([]transferdomain.Transfer, error) {
	return t.repo.ListByRange(ctx, t.db, profileID, rg)
}

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *telemetry.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(telemetry.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *telemetry.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	log    *zap.Logger
	clock  clock.Clock

	profileSvc profiledomain.Service
	login      ProfileLogin
	sync       SyncController
	transfers  TransferLister
	billingSvc billingdomain.Service
	health     HealthSource
	logs       LogReader
	liveLogs   *logsink.Hub
	users      appuserdomain.Service
	authz      authz.Service
	sessions   *session.Manager
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Clock      clock.Clock
	ProfileSvc profiledomain.Service
	Login      ProfileLogin
	Sync       SyncController
	Transfers  TransferLister
	BillingSvc billingdomain.Service
	Health     HealthSource
	Logs       LogReader
	LiveLogs   *logsink.Hub `optional:"true"`
	Users      appuserdomain.Service
	Authz      authz.Service
	Sessions   *session.Manager
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.api"),
		clock:      p.Clock,
		profileSvc: p.ProfileSvc,
		login:      p.Login,
		sync:       p.Sync,
		transfers:  p.Transfers,
		billingSvc: p.BillingSvc,
		health:     p.Health,
		logs:       p.Logs,
		liveLogs:   p.LiveLogs,
		users:      p.Users,
		authz:      p.Authz,
		sessions:   p.Sessions,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/password", s.AuthRequired(), s.ChangePassword)

	secured := api.Group("", s.AuthRequired())

	profiles := secured.Group("/profiles")
	profiles.GET("", s.authorize(authz.ObjectProfile, authz.ActionView), s.ListProfiles)
	profiles.POST("", s.authorize(authz.ObjectProfile, authz.ActionManage), s.CreateProfile)
	profiles.GET("/:id", s.authorize(authz.ObjectProfile, authz.ActionView), s.GetProfile)
	profiles.PUT("/:id", s.authorize(authz.ObjectProfile, authz.ActionManage), s.UpdateProfile)
	profiles.POST("/:id/login", s.authorize(authz.ObjectTransfer, authz.ActionFetch), s.LoginProfile)
	// a manual sync ends with add-to-pos
	profiles.POST("/:id/sync", s.authorize(authz.ObjectPos, authz.ActionAdd), s.SyncProfile)

	secured.GET("/transfers", s.authorize(authz.ObjectTransfer, authz.ActionView), s.ListTransfers)

	billing := secured.Group("/billing")
	billing.GET("/summary", s.authorize(authz.ObjectBilling, authz.ActionView), s.GetCurrentBillingSummary)
	billing.GET("/summary/:period", s.authorize(authz.ObjectBilling, authz.ActionView), s.GetBillingSummary)
	billing.GET("/tariffs", s.authorize(authz.ObjectBilling, authz.ActionView), s.GetTariffs)
	billing.PUT("/tariffs", s.authorize(authz.ObjectSettings, authz.ActionEdit), s.SaveTariffs)
	billing.GET("/events", s.authorize(authz.ObjectBilling, authz.ActionView), s.ListBillingEvents)
	billing.GET("/periods", s.authorize(authz.ObjectBilling, authz.ActionView), s.ListBillingPeriods)
	billing.POST("/periods/close", s.authorize(authz.ObjectBilling, authz.ActionManage), s.CloseBillingPeriod)
	billing.GET("/periods/:period/statement.pdf", s.authorize(authz.ObjectBilling, authz.ActionView), s.DownloadStatement)

	sync := secured.Group("/sync")
	sync.GET("/health", s.authorize(authz.ObjectReports, authz.ActionView), s.GetSyncHealth)
	sync.GET("/status", s.authorize(authz.ObjectReports, authz.ActionView), s.GetSyncStatus)
	sync.POST("/start", s.authorize(authz.ObjectWorker, authz.ActionControl), s.StartSync)
	sync.POST("/stop", s.authorize(authz.ObjectWorker, authz.ActionControl), s.StopSync)

	secured.GET("/logs", s.authorize(authz.ObjectLogs, authz.ActionView), s.ListLogs)
	secured.GET("/logs/stream", s.authorize(authz.ObjectLogs, authz.ActionView), s.StreamLogs)

	users := secured.Group("/users", s.authorize(authz.ObjectUsers, authz.ActionManage))
	users.GET("", s.ListUsers)
	users.POST("", s.CreateUser)
	users.PUT("/:id", s.UpdateUser)
	users.DELETE("/:id", s.DeleteUser)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
