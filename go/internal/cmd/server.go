package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/livequiz/go/internal/outbox"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/gateway"
	"github.com/mcdev12/livequiz/go/internal/session/rpc"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const qrSize = 320

func serve(ctx context.Context, cfg *Config) error {
	svc, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := setupServer(cfg, svc)

	mgrCtx, stopManager := context.WithCancel(ctx)
	defer stopManager()
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		_ = svc.Manager.Run(mgrCtx)
	}()

	// the outbox stops after the manager
	outboxCtx, stopOutbox := context.WithCancel(context.Background())
	defer stopOutbox()
	outboxDone := make(chan struct{})
	if svc.Outbox != nil {
		go func() {
			defer close(outboxDone)
			_ = svc.Outbox.Run(outboxCtx)
		}()
	} else {
		close(outboxDone)
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", releaseVersion).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
		log.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	svc.Gateway.CloseAll()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("server shutdown")
	}

	stopManager()
	<-managerDone
	stopOutbox()
	<-outboxDone
	log.Info().Msg("shutdown complete")
	return err
}

func setupServer(cfg *Config, svc *Services) *http.Server {
	router := httprouter.New()
	registerServices(router, svc)
	gateway.NewWebSocketHandler(svc.Gateway, svc.Tokens).RegisterRoutes(router)
	router.GET("/join/:code/qr.png", serveJoinQR(cfg, svc.Manager))
	router.GET("/health", serveHealth(svc))

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           h2c.NewHandler(c.Handler(router), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(router *httprouter.Router, svc *Services) {
	path, handler := rpc.NewSessionServiceHandler(
		rpc.NewService(svc.Manager),
		connect.WithInterceptors(rpc.NewAuthInterceptor(svc.Tokens)),
	)
	router.Handler(http.MethodPost, path+"*procedure", handler)
}

// serveJoinQR renders the join link for a live session as a PNG
func serveJoinQR(cfg *Config, mgr *session.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		if _, err := mgr.Get(r.Context(), code); err != nil {
			if session.IsNotFound(err) {
				http.Error(w, "session ended or code invalid", http.StatusNotFound)
				return
			}
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}

		png, err := qrcode.Encode(joinURL(cfg, r, code), qrcode.Medium, qrSize)
		if err != nil {
			log.Error().Err(err).Str("access_code", code).Msg("qr generation failed")
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

// joinURL uses --public-url when set, otherwise the request's own origin
func joinURL(cfg *Config, r *http.Request, code string) string {
	base := strings.TrimSuffix(cfg.publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

type healthReport struct {
	Status      string        `json:"status"`
	Version     string        `json:"version"`
	Sessions    int           `json:"sessions"`
	Connections int           `json:"connections"`
	Outbox      *outbox.Stats `json:"outbox,omitempty"`
}

func serveHealth(svc *Services) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		report := healthReport{
			Status:      "ok",
			Version:     releaseVersion,
			Sessions:    svc.Manager.ActiveSessions(),
			Connections: svc.Gateway.Stats().TotalConnections,
		}
		if svc.Outbox != nil {
			stats := svc.Outbox.Stats()
			report.Outbox = &stats
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	}
}
