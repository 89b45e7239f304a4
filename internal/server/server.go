package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/account"
	accountdomain "github.com/creditflow/creditflow/internal/account/domain"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/ledger"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/creditflow/creditflow/internal/metering"
	"github.com/creditflow/creditflow/internal/token"
	"github.com/creditflow/creditflow/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	account.Module,
	ledger.Module,
	token.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	genID      *snowflake.Node
	accountSvc accountdomain.Service
	store      ledgerdomain.Store
	meter      *metering.Engine
	tokens     *token.Service
	hub        *ws.Hub
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	AccountSvc accountdomain.Service
	Store      ledgerdomain.Store
	Meter      *metering.Engine
	Tokens     *token.Service
	Hub        *ws.Hub
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		accountSvc: p.AccountSvc,
		store:      p.Store,
		meter:      p.Meter,
		tokens:     p.Tokens,
		hub:        p.Hub,
	}
}

func RegisterRoutes(s *Server) {
	api := s.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)

	user := api.Group("/user", s.AuthRequired())
	user.GET("/profile", s.Profile)

	session := api.Group("/session", s.AuthRequired())
	session.POST("/start", s.StartSession)
	session.POST("/stop", s.StopSession)
	session.GET("/status", s.SessionStatus)
	session.GET("/history", s.SessionHistory)

	credits := api.Group("/credits", s.AuthRequired())
	credits.POST("/purchase", s.PurchaseCredits)
	credits.GET("/purchase", s.CreditPackages)

	s.engine.GET("/ws", func(c *gin.Context) {
		s.hub.HandleUpgrade(c.Writer, c.Request)
	})
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
