// Package server hosts the MCP tools over stdio or streamable HTTP and
// exposes health, readiness and metrics endpoints on a gin engine.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/auth"
	"github.com/danmuck/sshexec/internal/gate"
	"github.com/danmuck/sshexec/internal/observability"
	"github.com/danmuck/sshexec/internal/tools"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

const (
	DefaultName   = "sshexec"
	DefaultListen = "127.0.0.1:8080"

	shutdownTimeout = 5 * time.Second
)

var ErrUnknownTransport = errors.New("server: unknown transport")

type Options struct {
	Name      string
	Version   string
	Transport Transport
	// Listen is the HTTP address for the http transport.
	Listen string
	// AdminListen optionally serves health and metrics in stdio mode.
	AdminListen string
	AuthToken   string
	CORSOrigins []string
	// TLSCertFile and TLSKeyFile enable HTTPS on every HTTP listener.
	TLSCertFile string
	TLSKeyFile  string
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Transport == "" {
		o.Transport = TransportStdio
	}
	if strings.TrimSpace(o.Listen) == "" {
		o.Listen = DefaultListen
	}
	return o
}

type Server struct {
	opts     Options
	gate     *gate.Gate
	mcp      *mcp.Server
	router   *gin.Engine
	appeared time.Time
}

// New builds the MCP server with the gate-backed tools registered and the
// HTTP engine with its routes.
func New(g *gate.Gate, opts Options) *Server {
	opts = opts.withDefaults()
	observability.RegisterMetrics()

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	tools.Register(mcpServer, g)

	s := &Server{
		opts:     opts,
		gate:     g,
		mcp:      mcpServer,
		router:   newRouter(opts),
		appeared: time.Now(),
	}
	s.RegisterRoutes()
	return s
}

func newRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID(log.Logger))
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(opts.CORSOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Mcp-Session-Id", "Mcp-Protocol-Version", observability.RequestIDHeader},
		ExposeHeaders: []string{"Mcp-Session-Id", observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	trustProxies(r, []string{"127.0.0.1", "::1"})
	return r
}

func trustProxies(r *gin.Engine, proxies []string) {
	if err := r.SetTrustedProxies(proxies); err != nil {
		log.Warn().Err(err).Strs("proxies", proxies).Msg("trusted proxies not applied")
	}
}

func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) Options() Options {
	return s.opts
}

// Run serves the configured transport until it ends or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info().
		Str("transport", string(s.opts.Transport)).
		Str("listen", s.opts.Listen).
		Str("admin_listen", s.opts.AdminListen).
		Bool("auth", s.opts.AuthToken != "").
		Bool("tls", s.opts.TLSCertFile != "").
		Msg("sshexec server starting")

	switch s.opts.Transport {
	case TransportHTTP:
		return s.serveHTTP(ctx, s.opts.Listen)
	case TransportStdio:
		return s.runStdio(ctx)
	default:
		return errors.Wrapf(ErrUnknownTransport, "%q", s.opts.Transport)
	}
}

func (s *Server) runStdio(ctx context.Context) error {
	if s.opts.AdminListen == "" {
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	go func() {
		adminErr <- s.serveHTTP(ctx, s.opts.AdminListen)
	}()

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	cancel()
	if aerr := <-adminErr; aerr != nil && err == nil {
		err = aerr
	}
	return err
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return serveListener(ctx, ln, s.router, s.opts.TLSCertFile, s.opts.TLSKeyFile)
}

// serveListener serves handler on ln, over TLS when a certificate is given,
// and shuts down gracefully when ctx ends.
func serveListener(ctx context.Context, ln net.Listener, handler http.Handler, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := certFile != "" && keyFile != ""

	errCh := make(chan error, 1)
	go func() {
		if useTLS {
			errCh <- srv.ServeTLS(ln, certFile, keyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	addr := ln.Addr().String()
	log.Info().Str("addr", addr).Bool("tls", useTLS).Msg("http listener started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "serve %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	log.Info().Str("addr", addr).Msg("http listener stopped")
	return nil
}

func bearerValidator(token string) auth.Validator {
	if token == "" {
		return nil
	}
	return auth.StaticToken{Token: token}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
