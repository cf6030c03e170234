// Package server serves a directory tree on a loopback address with an
// OS-assigned port for the lifetime of one run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tomyan/headlessmocha/internal/log"
)

// Config configures Start.
type Config struct {
	Root    string       // directory to serve; "." when empty
	Handler http.Handler // replaces the file server when non-nil
	Logger  *log.Logger
}

// BindError is returned when the listener cannot be created.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Server is a running host service.
type Server struct {
	ln     net.Listener
	srv    *http.Server
	logger *log.Logger
	done   chan error

	closeOnce sync.Once
	closeErr  error
}

const loopback = "127.0.0.1:0"

// Start binds a loopback listener and begins serving in the background.
func Start(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", loopback)
	if err != nil {
		return nil, &BindError{Addr: loopback, Err: err}
	}

	h := cfg.Handler
	if h == nil {
		root := cfg.Root
		if root == "" {
			root = "."
		}
		h = http.FileServer(http.Dir(root))
	}

	s := &Server{
		ln:     ln,
		logger: cfg.Logger,
		done:   make(chan error, 1),
	}
	s.srv = &http.Server{
		Handler:           s.routes(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Debugf("server", "serving on %s", ln.Addr())
	return s, nil
}

func (s *Server) routes(h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NoCache)
	r.Use(s.requestLog)
	r.Mount("/", h)
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debugf("server", "%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// Addr returns the bound address.
func (s *Server) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

// URL returns the absolute URL of path on this server.
func (s *Server) URL(path string) string {
	addr := s.Addr()
	host := net.JoinHostPort(addr.IP.String(), strconv.Itoa(addr.Port))
	return "http://" + host + "/" + strings.TrimPrefix(path, "/")
}

// Close shuts the server down, waiting for in-flight requests until ctx is done.
// Later calls return the first call's result.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		err := s.srv.Shutdown(ctx)
		if serr := <-s.done; err == nil {
			err = serr
		}
		s.closeErr = err
		s.logger.Debugf("server", "closed %s", s.ln.Addr())
	})
	return s.closeErr
}
