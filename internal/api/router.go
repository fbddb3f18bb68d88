package api

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/docqa/docqa-api/docs"
	"github.com/docqa/docqa-api/internal/api/handler"
	"github.com/docqa/docqa-api/internal/api/middleware"
	"github.com/docqa/docqa-api/internal/core/ports"
	"github.com/docqa/docqa-api/internal/infrastructure/http/handlers"
)

// Resource types guarded by the gate.
const (
	resourceDocument = "Document"
	resourceRole     = "Role"
	resourceUser     = "User"
)

// Dependencies are the collaborators the HTTP layer routes to. The storage
// handles are only used by the readiness probe and may be nil.
type Dependencies struct {
	Gate      middleware.Authorizer
	Auth      ports.AuthService
	Users     ports.UserService
	Roles     ports.RoleService
	Documents ports.DocumentService
	QA        ports.QAService

	Postgres *pgxpool.Pool
	Mongo    *mongo.Database
	Redis    *redis.Client

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddleware("docqa"))

	guard := func(action, resourceType string) echo.MiddlewareFunc {
		return middleware.RequirePermission(deps.Gate, action, resourceType)
	}

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/token", authHandler.Token)
	e.POST("/auth/logout", middleware.Guard(deps.Gate, "logout", "", authHandler.Logout))

	// --- Users ---
	userHandler := handler.NewUserHandler(deps.Users)
	users := e.Group("/users")
	users.GET("/me", userHandler.Me, guard("read_self", ""))
	users.PUT("/me", userHandler.UpdateMe, guard("update_self", ""))
	users.DELETE("/me", userHandler.DeleteMe, guard("delete_self", ""))
	users.GET("", userHandler.List, guard("read", resourceUser))
	users.GET("/:id", userHandler.Get, guard("read", resourceUser))
	users.DELETE("/:id", userHandler.Delete, guard("delete", resourceUser))
	users.PUT("/:id/admin", userHandler.SetAdmin, guard("manage_roles", resourceUser))

	// --- Roles ---
	roleHandler := handler.NewRoleHandler(deps.Roles)
	manageRoles := guard("manage_roles", resourceRole)
	roles := e.Group("/roles")
	roles.GET("", roleHandler.List, guard("read", resourceRole))
	roles.POST("", roleHandler.Create, manageRoles)
	roles.DELETE("/:id", roleHandler.Delete, manageRoles)
	roles.POST("/assign/:user_id/:role_id", roleHandler.Assign, manageRoles)
	roles.DELETE("/remove/:user_id/:role_id", roleHandler.Remove, manageRoles)
	roles.POST("/:id/permissions", roleHandler.GrantPermission, manageRoles)
	roles.DELETE("/:id/permissions", roleHandler.RevokePermission, manageRoles)

	// --- Documents ---
	documentHandler := handler.NewDocumentHandler(deps.Documents)
	documents := e.Group("/documents")
	documents.GET("", documentHandler.List, guard("read", resourceDocument))
	documents.POST("", documentHandler.Upload, guard("write", resourceDocument))
	documents.DELETE("", documentHandler.Delete, guard("delete", resourceDocument))
	documents.DELETE("/collection", documentHandler.Clear, guard("clear", resourceDocument))

	// --- QA ---
	qaHandler := handler.NewQAHandler(deps.QA)
	e.POST("/qa", qaHandler.Ask, guard("ask", resourceDocument))

	// --- Public ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Postgres, deps.Mongo, deps.Redis)

	e.GET("/", handler.Root)
	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
