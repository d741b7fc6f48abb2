// Package adminsurface exposes the bombardier's control surface: a gRPC
// health/reflection endpoint for operational tooling (grpcurl, load
// balancers) and a small net/http JSON API backed directly by a
// *controller.Controller for starting, inspecting, and stopping test flows.
package adminsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/bombardier/internal/controller"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bombardier/internal/health"
	"github.com/vladislavdragonenkov/bombardier/internal/version"
)

const gracefulShutdownTimeout = 5 * time.Second

// Config describes where the admin surface listens.
type Config struct {
	GRPCAddr string
	HTTPAddr string
}

// DefaultConfig returns the bombardier's default admin listen addresses.
func DefaultConfig() Config {
	return Config{
		GRPCAddr: ":50151",
		HTTPAddr: ":9191",
	}
}

// Run serves the gRPC health/reflection endpoint and the HTTP control API
// until ctx is cancelled, then shuts both down gracefully.
func Run(ctx context.Context, cfg Config, c *controller.Controller) error {
	logger := log.WithField("component", "adminsurface")

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc server metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("adminsurface: listen grpc: %w", err)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("controller", controllerChecker{c: c})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewHTTPHandler(c, healthHandler),
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Infof("admin gRPC listening on %s", cfg.GRPCAddr)
		grpcErrCh <- grpcServer.Serve(lis)
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Infof("admin HTTP listening on %s", cfg.HTTPAddr)
		httpErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down admin surface")
		stopGRPC(grpcServer, healthServer, gracefulShutdownTimeout, logger)
		stopHTTP(httpServer, logger)
		return ctx.Err()
	case err := <-grpcErrCh:
		stopHTTP(httpServer, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case err := <-httpErrCh:
		stopGRPC(grpcServer, healthServer, gracefulShutdownTimeout, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func stopGRPC(srv *grpc.Server, hs *health.Server, timeout time.Duration, logger *log.Entry) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("grpc graceful stop timed out, forcing")
		srv.Stop()
	}
}

func stopHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http admin server shutdown error")
	}
}

// controllerChecker reports unhealthy only if the controller itself is nil;
// the controller has no failure mode of its own once constructed.
type controllerChecker struct {
	c *controller.Controller
}

func (cc controllerChecker) Check() healthcheck.Check {
	if cc.c == nil {
		return healthcheck.Check{Name: "controller", Status: healthcheck.StatusUnhealthy, Message: "controller not wired"}
	}
	return healthcheck.Check{Name: "controller", Status: healthcheck.StatusHealthy}
}

// NewHTTPHandler builds the JSON control API:
//
//	POST   /flows          start a test flow (body: domain.RunParams)
//	GET    /flows/{service} snapshot of a running flow
//	DELETE /flows/{service} stop a running flow
//	GET    /healthz         liveness/readiness report
func NewHTTPHandler(c *controller.Controller, healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.ServeHTTP)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/flows", flowsIndexHandler(c))
	mux.HandleFunc("/flows/", flowsItemHandler(c))
	return mux
}

func flowsIndexHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "only POST is supported on /flows")
			return
		}

		var params domain.RunParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		if err := c.StartTestingForService(r.Context(), params); err != nil {
			writeControllerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"service": params.ServiceName, "status": "started"})
	}
}

func flowsItemHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service := strings.TrimPrefix(r.URL.Path, "/flows/")
		if service == "" {
			writeError(w, http.StatusBadRequest, "service name is required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			snapshot, err := c.GetTestingFlowForService(service)
			if err != nil {
				writeControllerError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snapshot)
		case http.MethodDelete:
			if err := c.StopTestByServiceName(r.Context(), service); err != nil {
				writeControllerError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "only GET and DELETE are supported on /flows/{service}")
		}
	}
}

func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, controller.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, controller.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
