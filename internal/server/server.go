package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCLab/backend/internal/config"
	"github.com/GriffinCanCode/IPCLab/backend/internal/coordinator"
	ipchttp "github.com/GriffinCanCode/IPCLab/backend/internal/http"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc/pipes"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc/shmem"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc/sockets"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/monitoring"
)

// shutdownGrace bounds how long in-flight requests get on shutdown.
const shutdownGrace = 5 * time.Second

// Server wraps the HTTP server and its dependencies.
type Server struct {
	log     *logging.Logger
	router  *gin.Engine
	coord   *coordinator.Coordinator
	metrics *monitoring.Metrics
	httpSrv *http.Server
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	metrics := monitoring.New()

	channels := []coordinator.Channel{
		pipes.New(log),
		sockets.New(log),
		shmem.New(log,
			shmem.WithKeyDir(cfg.Shmem.KeyDir),
			shmem.WithRetryPolicy(shmem.RetryPolicy{
				Timeout:  cfg.Shmem.LockTimeout,
				Attempts: cfg.Shmem.LockRetries,
			}),
		),
	}
	coord := coordinator.New(log, channels,
		coordinator.WithSettleDelay(cfg.Coord.SettleDelay),
		coordinator.WithMetrics(metrics),
	)
	coord.Initialize()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	h := ipchttp.NewHandlers(coord)
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	ipcGroup := router.Group("/ipc")
	{
		ipcGroup.GET("/status", h.Status)
		ipcGroup.POST("/start", h.Start)
		ipcGroup.POST("/stop", h.Stop)
		ipcGroup.POST("/restart", h.Restart)
		ipcGroup.POST("/send", h.Send)
		ipcGroup.GET("/receive/:mechanism", h.Receive)
		ipcGroup.POST("/command", h.Command)
		ipcGroup.GET("/logs/:mechanism", h.Logs)
		ipcGroup.GET("/detail/:mechanism", h.Detail)
	}

	return &Server{
		log:     log.Component("server"),
		router:  router,
		coord:   coord,
		metrics: metrics,
	}
}

// Coordinator exposes the underlying coordinator, used by the interactive
// and daemon entry modes which bypass HTTP.
func (s *Server) Coordinator() *coordinator.Coordinator { return s.coord }

// Run serves until the context is canceled, then drains in-flight
// requests and shuts the coordinator down.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.Close()
			return err
		}
	case <-ctx.Done():
		s.log.Info("context canceled, draining")
		drain, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpSrv.Shutdown(drain); err != nil {
			s.log.Warn("drain failed", zap.Error(err))
		}
		<-errCh
	}

	s.Close()
	return nil
}

// Close stops the coordinator and all channels. Idempotent.
func (s *Server) Close() error {
	s.coord.Shutdown()
	return nil
}
