package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/teamride-labs/teamride/internal/checkout/domain"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/observability"
	organizationdomain "github.com/teamride-labs/teamride/internal/organization/domain"
	paymentdomain "github.com/teamride-labs/teamride/internal/payment/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	quotadomain "github.com/teamride-labs/teamride/internal/quota/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Catalog     plandomain.Catalog
	OrgSvc      organizationdomain.Service
	SubSvc      subscriptiondomain.Service
	QuotaSvc    quotadomain.Service
	CheckoutSvc checkoutdomain.Service
	WebhookSvc  paymentdomain.Service
	Metrics     *observability.Metrics `optional:"true"`
}

type Server struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.Config
	catalog     plandomain.Catalog
	orgSvc      organizationdomain.Service
	subSvc      subscriptiondomain.Service
	quotaSvc    quotadomain.Service
	checkoutSvc checkoutdomain.Service
	webhookSvc  paymentdomain.Service
	metrics     *observability.Metrics

	engine *gin.Engine
	http   *http.Server
}

func NewServer(p Params) *Server {
	return &Server{
		db:          p.DB,
		log:         p.Log.Named("server"),
		cfg:         p.Cfg,
		catalog:     p.Catalog,
		orgSvc:      p.OrgSvc,
		subSvc:      p.SubSvc,
		quotaSvc:    p.QuotaSvc,
		checkoutSvc: p.CheckoutSvc,
		webhookSvc:  p.WebhookSvc,
		metrics:     p.Metrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	if s.engine == nil {
		s.RegisterRoutes()
	}
	return s.engine
}

func (s *Server) RegisterRoutes() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/plans", s.ListPlans)

		v1.POST("/organizations", s.CreateOrganization)
		v1.GET("/organizations/:id", s.GetOrganization)
		v1.GET("/organizations/:id/subscription", s.GetSubscription)
		v1.GET("/organizations/:id/quota", s.GetQuota)
		v1.POST("/organizations/:id/checkout", s.CreateCheckoutSession)

		v1.POST("/webhooks/:provider", s.HandleProviderWebhook)
	}

	s.engine = r
}

func RunHTTP(lc fx.Lifecycle, s *Server) {
	s.RegisterRoutes()
	s.http = &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))
				if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.http.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
