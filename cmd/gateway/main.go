// Command gateway is the HTTP entry point for the authgate service.
//
// Purpose:
//   This binary serves the session-elevation gateway in front of the leads
//   dashboard: password login, TOTP enrollment and step-up verification, and
//   the gated lead views. It initializes core dependencies (Postgres, Redis,
//   identity provider, audit emitter) via bootstrap, mounts the gate
//   middleware around the application routes, and serves HTTP requests with
//   graceful shutdown handling.
//
// Dependencies:
//   - internal/bootstrap: Runtime initialization and lifecycle management
//   - internal/config: Configuration from environment variables
//   - internal/gate: request gating middleware
//   - internal/httpapi/{auth,mfa,leads,meta}: endpoint handlers
//   - internal/server: HTTP server with health/readiness endpoints
//
// Key Responsibilities:
//   - Load configuration and initialize runtime dependencies
//   - Mount ungated metadata routes and the gated application group
//   - Serve HTTP requests on configured port
//   - Handle graceful shutdown (SIGINT/SIGTERM) with 10s timeout
//
// Debugging Notes:
//   - Server starts on HTTP_PORT (default 8080)
//   - Readiness probe checks Postgres and Redis connectivity
//   - /api/health, /api/openapi, /healthz, /readyz, /metrics bypass the gate
//   - Every other route passes the gate middleware
//
// Error Handling:
//   - Configuration errors exit with code 1
//   - Bootstrap failures log fatal and exit
//   - Shutdown errors log error and exit non-zero
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eryai/authgate/internal/bootstrap"
	"github.com/eryai/authgate/internal/config"
	"github.com/eryai/authgate/internal/enroll"
	"github.com/eryai/authgate/internal/gate"
	"github.com/eryai/authgate/internal/httpapi/auth"
	"github.com/eryai/authgate/internal/httpapi/leads"
	"github.com/eryai/authgate/internal/httpapi/meta"
	"github.com/eryai/authgate/internal/httpapi/mfa"
	"github.com/eryai/authgate/internal/server"
	"github.com/eryai/authgate/internal/stepup"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.MustLoad()

	ctx := context.Background()
	runtime, err := bootstrap.Initialize(ctx, cfg)
	if err != nil {
		// The bootstrap logger may not exist yet; write plainly and exit.
		os.Stderr.WriteString("failed to bootstrap runtime: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := runtime.Logger
	logger.Info().
		Str("env", cfg.Environment).
		Int("port", cfg.HTTPPort).
		Msg("starting gateway")

	cookie := gate.SessionCookie{
		Name:   cfg.SessionCookie,
		Secure: cfg.SessionCookieSecure,
		TTL:    cfg.SessionTTL,
	}
	targets := gate.DefaultTargets

	gateMW := &gate.Middleware{
		Authority: runtime.Provider,
		Factors:   runtime.Provider,
		Cookie:    cookie,
		Targets:   targets,
		Logger:    logger,
	}

	authHandler := &auth.Handler{
		Authority: runtime.Provider,
		Factors:   runtime.Provider,
		Cookie:    cookie,
		Targets:   targets,
		Audit:     runtime.Audit,
		Logger:    logger,
	}
	mfaHandler := &mfa.Handler{
		Enroll:  enroll.NewManager(runtime.Provider, logger),
		StepUp:  stepup.NewVerifier(runtime.Provider, logger),
		Targets: targets,
		Audit:   runtime.Audit,
		Logger:  logger,
	}
	leadsHandler := &leads.Handler{Store: runtime.Postgres, Logger: logger}
	metaHandler := &meta.Handler{ServiceName: cfg.ServiceName, Version: version}

	srv := server.New(server.Options{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
		Readiness:   runtime.ReadinessProbe,
		RegisterRoutes: func(r chi.Router) {
			meta.RegisterRoutes(r, metaHandler)

			r.Group(func(gated chi.Router) {
				gated.Use(gateMW.Handler)
				auth.RegisterRoutes(gated, authHandler)
				mfa.RegisterRoutes(gated, mfaHandler)
				leads.RegisterRoutes(gated, leadsHandler)
				gated.Get("/", func(w http.ResponseWriter, req *http.Request) {
					http.Redirect(w, req, targets.Home, http.StatusFound)
				})
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	if err := runtime.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to cleanly close runtime")
	}

	logger.Info().Msg("gateway stopped")
}
