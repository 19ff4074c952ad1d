package apirouter

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	ServiceName     string
	APIKey          string
	GinMode         string
	SentryEnabled   bool
	ShutdownTimeout time.Duration
}

type RouteDefinition struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// NewRouter builds the engine serving the dispatcher API under /api/v1.
func NewRouter(
	cfg RouterConfig,
	logger *logging.Logger,
	dispatcher Dispatcher,
	registry callback.Registry,
) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.SentryEnabled {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(LoggerMiddleware(logger))
	r.Use(ErrorHandlerMiddleware())

	handlers := NewDispatchHandlers(logger, dispatcher, registry, cfg.ShutdownTimeout)

	routes := []RouteDefinition{
		{Method: http.MethodPost, Path: "/deliver", Handler: handlers.Deliver},
		{Method: http.MethodPost, Path: "/register", Handler: handlers.Register},
		{Method: http.MethodPost, Path: "/shutdown", Handler: handlers.Shutdown},
		{Method: http.MethodGet, Path: "/stats", Handler: handlers.Stats},
		{Method: http.MethodGet, Path: "/providers", Handler: handlers.Providers},
	}

	apiRouter := r.Group("/api/v1")
	apiRouter.Use(APIKeyAuthMiddleware(cfg.APIKey))
	registerRoutes(apiRouter, routes)

	return r
}

func registerRoutes(group *gin.RouterGroup, routes []RouteDefinition) {
	for _, route := range routes {
		group.Handle(route.Method, route.Path, route.Handler)
	}
}
