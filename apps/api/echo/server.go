package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/analytics"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/services/metrics"
	"github.com/telatku/telatku/services/realtime"
)

type (
	// Deps are the dependencies of the Server, injectable by dig.
	Deps struct {
		dig.In

		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		UserSvc      user.Service
		ClassSvc     class.Service
		StudentSvc   student.Service
		TardinessSvc tardiness.Service
		AnalyticsSvc analytics.Service
		Importer     *importer.Importer
		Broker       *realtime.Broker
		Metrics      *metrics.Metrics
	}

	Server struct {
		deps     Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(
		s.deps.Logger, s.deps.Translator, conf.Importer.MaxErrorsShown, s.SignalShutdown,
	)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.deps.Metrics.Middleware())

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	wsJWT := middleware.JWTWithConfig(jwtConfig(conf, "query:token"))

	lookup := s.deps.UserSvc
	guards := guards{
		staff:     roleMiddleware(lookup, user.StaffArea),
		analytics: roleMiddleware(lookup, user.AnalyticsArea),
		admin:     roleMiddleware(lookup, user.AdminArea),
	}

	registerUserAPI(v1, jwt, guards, s.deps)
	registerClassAPI(v1, jwt, guards, s.deps)
	registerStudentAPI(v1, jwt, guards, s.deps)
	registerTardinessAPI(v1, jwt, wsJWT, guards, s.deps)
	registerAnalyticsAPI(v1, jwt, guards, s.deps)
}

// guards are the role middlewares of the app areas.
type guards struct {
	staff, analytics, admin echo.MiddlewareFunc
}

// Start listens on the configured host; listen errors are sent to Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Host)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks for a graceful shutdown.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
