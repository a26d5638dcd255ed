// Package server serves the resolved page over HTTP with live reload.
//
// Every change to a page region and every completed run is pushed to
// connected browsers over a WebSocket at /ws. The server never runs the
// pipeline on its own; callers (or POST /refresh) do.
package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/sectionloader/internal/app"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/orchestrator"
	"github.com/conneroisu/sectionloader/internal/page"
)

const shutdownTimeout = 5 * time.Second

// PreviewServer serves the page of one App.
type PreviewServer struct {
	app    *app.App
	logger logging.Logger
	hub    *Hub
	router chi.Router

	serverMu     sync.Mutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	detach       []func()
}

// New creates a preview server for a. It subscribes to the document and to
// run completion straight away; Shutdown releases both.
func New(a *app.App, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = a.Logger
	}
	s := &PreviewServer{
		app:    a,
		logger: logger.WithComponent("server"),
	}
	s.hub = NewHub(s.logger)
	s.router = s.routes()

	sub := a.Document.Subscribe(func(m page.Mutation) {
		s.hub.Broadcast(UpdateMessage{Type: MessageRegionUpdated, Target: m.RegionID, Timestamp: m.At})
	})
	removeRun := a.OnRun(func(r *orchestrator.RunReport) {
		if r == nil {
			return
		}
		s.hub.Broadcast(UpdateMessage{Type: MessageRunComplete, Content: r.RunID})
	})
	s.detach = []func(){sub.Unsubscribe, removeRun}
	return s
}

func (s *PreviewServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(securityHeaders)

	r.Get("/", s.handleIndex)
	r.Get("/regions/{id}", s.handleRegion)
	r.Get("/report", s.handleReport)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/ws", s.handleWebSocket)
	r.Method(http.MethodGet, "/metrics", s.app.Metrics.Handler())
	r.Get("/healthz", s.app.Health.HTTPHandler())
	return r
}

// Handler returns the router.
func (s *PreviewServer) Handler() http.Handler {
	return s.router
}

// Hub returns the broadcast hub.
func (s *PreviewServer) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.app.Config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.app.Config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Shutdown is called.
func (s *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))

	s.serverMu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return hubCtx },
	}
	srv := s.httpServer
	s.serverMu.Unlock()

	go s.hub.Run(hubCtx)
	srv.RegisterOnShutdown(stopHub)

	s.logger.Info(ctx, "Preview server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		stopHub()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Addr returns the address being served, or "" before Serve.
func (s *PreviewServer) Addr() string {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, disconnects WebSocket clients and
// detaches from the App. It is safe to call more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		for _, fn := range s.detach {
			fn()
		}
		s.serverMu.Lock()
		srv := s.httpServer
		s.serverMu.Unlock()
		if srv != nil {
			err = srv.Shutdown(ctx)
		}
		s.logger.Info(ctx, "Preview server stopped")
	})
	return err
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "markdown" {
		md, err := s.app.RenderMarkdown()
		if err != nil {
			s.fail(w, r, err, "render markdown")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}

	html, err := s.app.RenderHTML(r.Context(), true)
	if err != nil {
		s.fail(w, r, err, "render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *PreviewServer) handleRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	region, ok := s.app.Document.Region(id)
	if !ok {
		http.Error(w, fmt.Sprintf("region %q not found", id), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Region-Version", fmt.Sprint(region.Version()))
	_, _ = w.Write([]byte(region.HTML()))
}

func (s *PreviewServer) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.app.LastReport()
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *PreviewServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Reload(r.Context()); err != nil {
		s.fail(w, r, err, "reload content")
		return
	}
	report, err := s.app.Run(r.Context())
	if report == nil {
		s.fail(w, r, err, "run")
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin already checked above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	s.hub.serve(r.Context(), conn)
}

// checkOrigin accepts only http(s) origins naming the configured address,
// localhost or the host the request was sent to.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	cfg := s.app.Config.Server
	allowed := []string{
		cfg.Addr(),
		fmt.Sprintf("localhost:%d", cfg.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		r.Host,
	}
	for _, host := range allowed {
		if originURL.Host == host {
			return true
		}
	}
	return false
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// securityHeaders sets a per-request script nonce and the headers that keep
// the page from being framed or sniffed.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := newNonce()
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; "+
			"script-src 'nonce-"+nonce+"'; "+
			"style-src 'self' 'unsafe-inline'; "+
			"img-src 'self' data: https:; "+
			"connect-src 'self' ws: wss:; "+
			"frame-ancestors 'none'")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")

		next.ServeHTTP(w, r.WithContext(templ.WithNonce(r.Context(), nonce)))
	})
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (s *PreviewServer) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	s.logger.Error(r.Context(), err, "Request failed", "operation", what, "path", r.URL.Path)
	http.Error(w, what+" failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
