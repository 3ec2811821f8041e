// Package framework is a minimal web framework.
package framework

import (
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tantan-solutions/vc-exchange-service/config"
)

type contextKey string

const (
	TraceIDKey contextKey = "traceID"
)

func (c contextKey) String() string {
	return string(c)
}

// Server is the entrypoint into our application and what configures our context object for each of our http router.
// Feel free to add any configuration data/logic on this Server struct.
type Server struct {
	*http.Server
	router   *gin.Engine
	tracer   trace.Tracer
	shutdown chan os.Signal
}

type Handler func(c *gin.Context) error

// NewHTTPServer creates a Server that handles a set of routes for the application.
func NewHTTPServer(cfg config.ServerConfig, handler *gin.Engine, shutdown chan os.Signal) *Server {
	var tracer trace.Tracer
	if cfg.JagerEnabled {
		tracer = otel.Tracer(config.ServiceName)
	}

	return &Server{
		Server: &http.Server{
			Addr:              cfg.APIHost,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		router:   handler,
		tracer:   tracer,
		shutdown: shutdown,
	}
}

// Handle sets a handler function for a given HTTP method and path pair
// to the server mux.
func (s *Server) Handle(method string, path string, handler Handler) {
	h := func(c *gin.Context) {
		// init a span, but only if the tracer is initialized
		if s.tracer != nil {
			_, span := s.tracer.Start(c, path)
			traceID := span.SpanContext().TraceID().String()
			c.Set(TraceIDKey.String(), traceID)

			defer span.End()
			r := c.Request
			span.SetAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.String("host", r.Host),
				attribute.String("user-agent", r.UserAgent()),
				attribute.String("proto", r.Proto),
			)
		}

		// handle the request
		if err := handler(c); err != nil {
			// if there's still an error at this point (not written by RespondError)
			// we know it's worth shutting down over
			logrus.WithError(err).Error("request failed")
			if IsShutdown(err) {
				logrus.WithError(err).Error("unsafe error, shutting down")
				s.SignalShutdown()
			}
			return
		}
	}

	s.router.Handle(method, path, h)
}

// SignalShutdown is used to gracefully shut down the server when an integrity issue is identified.
func (s *Server) SignalShutdown() {
	s.shutdown <- syscall.SIGTERM
}
