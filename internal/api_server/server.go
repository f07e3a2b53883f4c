package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/biovault/document-agent/internal/config"
	handlers "github.com/biovault/document-agent/internal/handlers/v1alpha1"
	"github.com/biovault/document-agent/internal/service"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/pkg/metrics"
	"github.com/biovault/document-agent/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
	trigger  service.Tick
}

// New returns a new instance of the document-agent API server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	trigger service.Tick,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
		trigger:  trigger,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(
		service.NewDocumentService(s.store, s.cfg.Service.UploadDir, s.cfg.Service.MaxUploadBytes, s.cfg.Service.DemoChartPath),
		service.NewFlagService(s.store),
		service.NewHealthService(s.store, s.cfg.Agent.LivenessThreshold),
		service.NewAgentService(s.store, s.trigger),
	)

	router.Get("/health", h.Health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.CreateDocument)
			r.Get("/", h.GetQueue)
			r.Post("/simulate", h.SimulateDocuments)
			r.Get("/{id}", h.GetDocument)
			r.Get("/{id}/results", h.GetDocumentResults)
			r.Get("/{id}/image", h.GetDocumentImage)
			r.Post("/{id}/retry", h.RetryDocument)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.GetUnresolvedAlerts)
			r.Get("/all", h.GetAllAlerts)
			r.Post("/{id}/resolve", h.ResolveAlert)
		})
		r.Route("/agent", func(r chi.Router) {
			r.Get("/activity", h.GetActivity)
			r.Post("/process-now", h.ProcessNow)
		})
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
